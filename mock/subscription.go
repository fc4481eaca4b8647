package mock

import (
	"github.com/stretchr/testify/mock"

	"github.com/subkeeper/subkeeper"
)

// SubscriptionService is a testify mock of subkeeper.SubscriptionService.
type SubscriptionService struct {
	mock.Mock
}

func (m *SubscriptionService) Create(name, email, plan string, content []string) (*subkeeper.Subscription, error) {
	args := m.Called(name, email, plan, content)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subkeeper.Subscription), args.Error(1)
}

func (m *SubscriptionService) FindByToken(token string) (*subkeeper.Subscription, error) {
	args := m.Called(token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subkeeper.Subscription), args.Error(1)
}

func (m *SubscriptionService) List(page, pageSize int, filter subkeeper.Filter) ([]subkeeper.Subscription, int, error) {
	args := m.Called(page, pageSize, filter)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]subkeeper.Subscription), args.Int(1), args.Error(2)
}

func (m *SubscriptionService) UpdateStatus(id int, status string) error {
	args := m.Called(id, status)
	return args.Error(0)
}

func (m *SubscriptionService) SoftDelete(id int) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *SubscriptionService) Unsubscribe(token string) (string, error) {
	args := m.Called(token)
	return args.String(0), args.Error(1)
}

func (m *SubscriptionService) Stats() (*subkeeper.Stats, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subkeeper.Stats), args.Error(1)
}
