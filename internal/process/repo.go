package process

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// ErrVersionConflict is returned when a conversation append loses the
// optimistic-concurrency race on the session row.
var ErrVersionConflict = errors.New("session version conflict")

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) CreateSession(ctx context.Context, s *Session) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *Repo) GetSessionBySessionID(ctx context.Context, sessionID string) (*Session, error) {
	var s Session
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// AppendConversation writes the turn's messages and bumps the session
// version, guarded by the version the caller loaded. A stale version
// means another turn got there first.
func (r *Repo) AppendConversation(ctx context.Context, sess *Session, msgs []Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range msgs {
			if err := tx.Create(&msgs[i]).Error; err != nil {
				return err
			}
		}
		res := tx.Model(&Session{}).
			Where("session_id = ? AND version = ?", sess.SessionID, sess.Version).
			Updates(map[string]any{
				"version":    sess.Version + 1,
				"updated_at": time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrVersionConflict
		}
		return nil
	})
}

// ListMessages returns messages in DESC id order (newest -> oldest),
// for paging from the API.
func (r *Repo) ListMessages(ctx context.Context, userID uint64, sessionID string, limit int, beforeID uint64) ([]Message, error) {
	q := r.db.WithContext(ctx).
		Where("user_id = ? AND session_id = ?", userID, sessionID).
		Order("id DESC").
		Limit(limit)

	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}

	var msgs []Message
	if err := q.Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// ListRecentMessagesAsc returns the most recent messages in chronological
// order, ready for context assembly.
func (r *Repo) ListRecentMessagesAsc(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	var desc []Message
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id DESC").
		Limit(limit).
		Find(&desc).Error; err != nil {
		return nil, err
	}
	asc := make([]Message, 0, len(desc))
	for i := len(desc) - 1; i >= 0; i-- {
		asc = append(asc, desc[i])
	}
	return asc, nil
}

func (r *Repo) SetGeneratedTemplate(ctx context.Context, sessionID string, tpl *GeneratedTemplate) error {
	var s Session
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		First(&s).Error; err != nil {
		return err
	}
	s.GeneratedTemplate = tpl
	return r.db.WithContext(ctx).Model(&s).Update("generated_template", tpl).Error
}

func (r *Repo) SetRequirements(ctx context.Context, sessionID string, reqs []Requirement) error {
	return r.db.WithContext(ctx).Model(&Session{}).
		Where("session_id = ?", sessionID).
		Update("requirements", reqs).Error
}
