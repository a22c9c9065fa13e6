package labels

// Label is a per-user named, colored tag. Names are unique within an owner;
// the composite index makes the check case-sensitive exact.
type Label struct {
	ID               string `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	UserID           string `gorm:"column:user_id;size:190;not null;uniqueIndex:idx_labels_user_name,priority:1" json:"userId"`
	Name             string `gorm:"column:name;size:190;not null;uniqueIndex:idx_labels_user_name,priority:2" json:"name"`
	Color            string `gorm:"column:color;size:64;not null" json:"color"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null" json:"createdAt"`
}

// TableName provides the explicit table binding for GORM.
func (Label) TableName() string {
	return "labels"
}
