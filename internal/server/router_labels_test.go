package server

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestLabelLifecycleOverHTTP(t *testing.T) {
	handler := newTestHandler(t)
	token := signupUser(t, handler, "ada@example.com")

	created := createLabelViaAPI(t, handler, token, "work", "#ff0000")
	if created.ID == "" || created.Name != "work" || created.Color != "#ff0000" {
		t.Fatalf("unexpected label document: %+v", created)
	}

	updateRecorder := performJSON(t, handler, http.MethodPut, "/labels/"+created.ID, token, gin.H{"color": "#00ff00"})
	if updateRecorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", updateRecorder.Code, updateRecorder.Body.String())
	}
	var updated labelDocument
	decodeBody(t, updateRecorder, &updated)
	if updated.Color != "#00ff00" || updated.Name != "work" {
		t.Fatalf("expected a recolor that keeps the name, got %+v", updated)
	}

	listRecorder := performJSON(t, handler, http.MethodGet, "/labels", token, nil)
	if listRecorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", listRecorder.Code)
	}
	var listed []labelDocument
	decodeBody(t, listRecorder, &listed)
	if len(listed) != 1 || listed[0].Color != "#00ff00" {
		t.Fatalf("unexpected listing: %+v", listed)
	}

	deleteRecorder := performJSON(t, handler, http.MethodDelete, "/labels/"+created.ID, token, nil)
	if deleteRecorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", deleteRecorder.Code)
	}

	listRecorder = performJSON(t, handler, http.MethodGet, "/labels", token, nil)
	decodeBody(t, listRecorder, &listed)
	if len(listed) != 0 {
		t.Fatalf("expected an empty listing after delete, got %+v", listed)
	}
}

func TestLabelListIsAlwaysAnArray(t *testing.T) {
	handler := newTestHandler(t)
	token := signupUser(t, handler, "ada@example.com")

	recorder := performJSON(t, handler, http.MethodGet, "/labels", token, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if body := recorder.Body.String(); body == "null" || body == "null\n" {
		t.Fatalf("expected [] for an empty catalog, got %q", body)
	}
}

func TestLabelValidationErrorsOverHTTP(t *testing.T) {
	handler := newTestHandler(t)
	token := signupUser(t, handler, "ada@example.com")
	createLabelViaAPI(t, handler, token, "work", "#ff0000")

	cases := []struct {
		name string
		body gin.H
	}{
		{name: "missing name", body: gin.H{"color": "#fff"}},
		{name: "missing color", body: gin.H{"name": "home"}},
		{name: "duplicate name", body: gin.H{"name": "work", "color": "#000"}},
	}
	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			recorder := performJSON(t, handler, http.MethodPost, "/labels", token, testCase.body)
			if recorder.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", recorder.Code, recorder.Body.String())
			}
		})
	}
}

func TestLabelsAreInvisibleAcrossOwners(t *testing.T) {
	handler := newTestHandler(t)
	ownerToken := signupUser(t, handler, "owner@example.com")
	otherToken := signupUser(t, handler, "other@example.com")

	label := createLabelViaAPI(t, handler, ownerToken, "work", "#ff0000")

	listRecorder := performJSON(t, handler, http.MethodGet, "/labels", otherToken, nil)
	var listed []labelDocument
	decodeBody(t, listRecorder, &listed)
	if len(listed) != 0 {
		t.Fatalf("foreign labels leaked: %+v", listed)
	}

	updateRecorder := performJSON(t, handler, http.MethodPut, "/labels/"+label.ID, otherToken, gin.H{"name": "stolen"})
	if updateRecorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for a foreign update, got %d", updateRecorder.Code)
	}
	deleteRecorder := performJSON(t, handler, http.MethodDelete, "/labels/"+label.ID, otherToken, nil)
	if deleteRecorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for a foreign delete, got %d", deleteRecorder.Code)
	}

	// The same name under a different owner is not a collision.
	createLabelViaAPI(t, handler, otherToken, "work", "#00ff00")
}

func TestDeletingLabelDetachesItFromNotes(t *testing.T) {
	handler := newTestHandler(t)
	token := signupUser(t, handler, "ada@example.com")

	label := createLabelViaAPI(t, handler, token, "work", "#ff0000")
	note := createNoteViaAPI(t, handler, token, gin.H{"content": "tagged", "labelIds": []string{label.ID}})
	if len(note.Labels) != 1 {
		t.Fatalf("expected the label to attach, got %+v", note.Labels)
	}

	deleteRecorder := performJSON(t, handler, http.MethodDelete, "/labels/"+label.ID, token, nil)
	if deleteRecorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", deleteRecorder.Code)
	}

	getRecorder := performJSON(t, handler, http.MethodGet, "/notes/"+note.ID, token, nil)
	if getRecorder.Code != http.StatusOK {
		t.Fatalf("the note itself must survive, got %d", getRecorder.Code)
	}
	var fetched noteDocument
	decodeBody(t, getRecorder, &fetched)
	if len(fetched.Labels) != 0 {
		t.Fatalf("expected the association to be gone, got %+v", fetched.Labels)
	}
}
