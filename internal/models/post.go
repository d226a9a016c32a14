package models

import (
	"time"

	"gorm.io/gorm"
)

// Post represents a post in the social network.
type Post struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	URL        string `gorm:"-" json:"url,omitempty"`
	Data       string `gorm:"type:text;not null" json:"data"`
	UserID     uint   `gorm:"not null;index" json:"creator"`
	CreatorURL string `gorm:"-" json:"creator_url,omitempty"`
	User       *User  `gorm:"foreignKey:UserID" json:"-"`
	Likes      []Like `gorm:"foreignKey:PostID" json:"-"`
	// Fans and LikesCount are derived from Likes; see CollectFans.
	Fans       []uint         `gorm:"-" json:"fans"`
	LikesCount int            `gorm:"-" json:"likes_count"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

// CollectFans fills Fans and LikesCount from the preloaded Likes.
func (p *Post) CollectFans() {
	p.Fans = make([]uint, 0, len(p.Likes))
	for _, like := range p.Likes {
		p.Fans = append(p.Fans, like.UserID)
	}
	p.LikesCount = len(p.Fans)
}

// HasFan reports whether userID is among the post's fans.
func (p *Post) HasFan(userID uint) bool {
	for _, id := range p.Fans {
		if id == userID {
			return true
		}
	}
	return false
}
