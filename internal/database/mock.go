package database

import (
	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockRepository) CreateAccount(params CreateAccountParams) (Account, error) {
	args := m.Called(params)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockRepository) UpdateAccount(params UpdateAccountParams) (Account, error) {
	args := m.Called(params)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockRepository) GetAccountById(accountId int) (Account, error) {
	args := m.Called(accountId)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockRepository) GetAccountByEmail(email string) (Account, error) {
	args := m.Called(email)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockRepository) ListChannels() ([]Channel, error) {
	args := m.Called()
	return args.Get(0).([]Channel), args.Error(1)
}
func (m *MockRepository) GetChannelByName(name string) (Channel, error) {
	args := m.Called(name)
	return args.Get(0).(Channel), args.Error(1)
}
func (m *MockRepository) GetChannelByExternalId(externalId string) (Channel, error) {
	args := m.Called(externalId)
	return args.Get(0).(Channel), args.Error(1)
}
func (m *MockRepository) CreateChannel(params CreateChannelParams) (Channel, error) {
	args := m.Called(params)
	return args.Get(0).(Channel), args.Error(1)
}
func (m *MockRepository) EnsureChannel(params CreateChannelParams) (Channel, bool, error) {
	args := m.Called(params)
	return args.Get(0).(Channel), args.Bool(1), args.Error(2)
}
func (m *MockRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	args := m.Called(params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockRepository) RecentMessages(channelId, limit int) ([]Message, error) {
	args := m.Called(channelId, limit)
	return args.Get(0).([]Message), args.Error(1)
}
