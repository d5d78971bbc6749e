package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"crmflow/internal/models"
)

// TagService 标签与客户标签关联
type TagService struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewTagService(db *gorm.DB, logger *logrus.Logger) *TagService {
	if logger == nil {
		logger = logrus.New()
	}
	return &TagService{db: db, logger: logger}
}

// AttachTag upserts the tag by (user, name) and links it to the client.
// Attaching an already linked tag is a no-op and reports created=false.
func (s *TagService) AttachTag(ctx context.Context, userID, clientID uint, name string) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, fmt.Errorf("%w: nome da tag vazio", ErrInvalidInput)
	}
	created := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tag := models.Tag{}
		// 字符串条件：struct 条件会丢掉 user_id = 0
		if err := tx.Where("user_id = ? AND nome = ?", userID, name).
			Attrs(models.Tag{UserID: userID, Name: name, CreatedAt: time.Now()}).
			FirstOrCreate(&tag).Error; err != nil {
			return fmt.Errorf("upsert tag: %w", err)
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.ClientTag{
			ClientID:  clientID,
			TagID:     tag.ID,
			CreatedAt: time.Now(),
		})
		if res.Error != nil {
			return fmt.Errorf("link tag: %w", res.Error)
		}
		created = res.RowsAffected > 0
		return nil
	})
	return created, err
}

// DetachTag removes the link; the tag itself stays for reuse.
func (s *TagService) DetachTag(ctx context.Context, userID, clientID uint, name string) error {
	var tag models.Tag
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND nome = ?", userID, strings.TrimSpace(name)).
		First(&tag).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("find tag: %w", err)
	}
	return s.db.WithContext(ctx).
		Where("cliente_id = ? AND tag_id = ?", clientID, tag.ID).
		Delete(&models.ClientTag{}).Error
}

func (s *TagService) ListTags(ctx context.Context, userID uint) ([]models.Tag, error) {
	var tags []models.Tag
	if err := s.db.WithContext(ctx).Scopes(ownedBy(userID)).Order("nome").Find(&tags).Error; err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return tags, nil
}

// ClientTags returns the tag names of one client, sorted.
func (s *TagService) ClientTags(ctx context.Context, clientID uint) ([]string, error) {
	byClient, err := s.tagsFor(ctx, []uint{clientID})
	if err != nil {
		return nil, err
	}
	return byClient[clientID], nil
}

func (s *TagService) tagsFor(ctx context.Context, clientIDs []uint) (map[uint][]string, error) {
	out := make(map[uint][]string, len(clientIDs))
	if len(clientIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		ClientID uint
		Name     string
	}
	err := s.db.WithContext(ctx).
		Table("cliente_tags").
		Select("cliente_tags.cliente_id AS client_id, tags.nome AS name").
		Joins("JOIN tags ON tags.id = cliente_tags.tag_id").
		Where("cliente_tags.cliente_id IN ?", clientIDs).
		Order("tags.nome").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load client tags: %w", err)
	}
	for _, r := range rows {
		out[r.ClientID] = append(out[r.ClientID], r.Name)
	}
	return out, nil
}
