package users

// User is the persisted account record. The password digest is excluded from
// every serialized payload.
type User struct {
	ID               string `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	Email            string `gorm:"column:email;size:320;not null;uniqueIndex:idx_users_email" json:"email"`
	Name             string `gorm:"column:name;size:190;not null" json:"name"`
	PasswordHash     string `gorm:"column:password_hash;size:190;not null" json:"-"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null" json:"createdAt"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null" json:"updatedAt"`
}

// TableName provides the explicit table binding for GORM.
func (User) TableName() string {
	return "users"
}
