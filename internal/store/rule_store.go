package store

import (
	"context"
	"fmt"
	"sync"

	"hostpilot/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RuleStore is the durable registry of automation definitions. It keeps an
// in-memory view in insertion order and writes through to the database
// synchronously. A failed load is fatal to the caller; a failed write at
// runtime is logged and the in-memory view keeps serving reads.
type RuleStore struct {
	mu     sync.RWMutex
	db     *gorm.DB
	rules  map[string]*models.AutomationRule
	order  []string
	logger *logrus.Logger
}

func NewRuleStore(db *gorm.DB, logger *logrus.Logger) *RuleStore {
	if logger == nil {
		logger = logrus.New()
	}
	return &RuleStore{
		db:     db,
		rules:  make(map[string]*models.AutomationRule),
		logger: logger,
	}
}

// Load reads the persisted rule collection into memory. It must succeed
// before the engine accepts traffic; the caller treats an error as fatal.
func (s *RuleStore) Load(ctx context.Context) error {
	var rules []models.AutomationRule
	if err := s.db.WithContext(ctx).Order("created_at, id").Find(&rules).Error; err != nil {
		return fmt.Errorf("load automations: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = make(map[string]*models.AutomationRule, len(rules))
	s.order = s.order[:0]
	for i := range rules {
		r := rules[i]
		s.rules[r.ID] = &r
		s.order = append(s.order, r.ID)
	}
	s.logger.Infof("Loaded %d automation(s) from store", len(rules))
	return nil
}

// Put inserts or fully replaces the rule with that id. Partial patches do
// not exist; callers always supply the complete definition.
func (s *RuleStore) Put(ctx context.Context, rule *models.AutomationRule) error {
	stored := rule.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[stored.ID]; !exists {
		s.order = append(s.order, stored.ID)
	}
	s.rules[stored.ID] = stored

	if err := s.db.WithContext(ctx).Save(stored).Error; err != nil {
		// 写入失败仅记录，内存视图继续对外提供服务
		s.logger.Errorf("Persist automation %s failed: %v", stored.ID, err)
	}
	return nil
}

// Get returns a copy of the rule, or models.ErrNotFound.
func (s *RuleStore) Get(ctx context.Context, id string) (*models.AutomationRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rule, ok := s.rules[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return rule.Clone(), nil
}

// Delete removes the rule. The caller is responsible for telling the
// scheduler to cancel the derived job; the store never reaches into it.
func (s *RuleStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[id]; !ok {
		return models.ErrNotFound
	}
	delete(s.rules, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	if err := s.db.WithContext(ctx).Delete(&models.AutomationRule{}, "id = ?", id).Error; err != nil {
		s.logger.Errorf("Delete automation %s from database failed: %v", id, err)
	}
	return nil
}

// List returns copies of all rules in insertion order.
func (s *RuleStore) List(ctx context.Context) []models.AutomationRule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.AutomationRule, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.rules[id].Clone())
	}
	return out
}

// Counts returns (enabled, total).
func (s *RuleStore) Counts() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	enabled := 0
	for _, r := range s.rules {
		if r.Enabled {
			enabled++
		}
	}
	return enabled, len(s.rules)
}
