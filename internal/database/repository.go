package database

type Repository interface {
	Ping() error
	CreateAccount(params CreateAccountParams) (Account, error)
	UpdateAccount(params UpdateAccountParams) (Account, error)
	GetAccountById(accountId int) (Account, error)
	GetAccountByEmail(email string) (Account, error)
	ListChannels() ([]Channel, error)
	GetChannelByName(name string) (Channel, error)
	GetChannelByExternalId(externalId string) (Channel, error)
	CreateChannel(params CreateChannelParams) (Channel, error)
	EnsureChannel(params CreateChannelParams) (Channel, bool, error)
	CreateMessage(params CreateMessageParams) (Message, error)
	RecentMessages(channelId, limit int) ([]Message, error)
}
