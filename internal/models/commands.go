package models

// Command is a typed mutation applied by Store.Apply. A batch of commands is applied
// all-or-nothing.
type Command interface {
	command() string
}

// UpsertStock inserts or replaces a stock entry of a shop.
type UpsertStock struct {
	ShopRef string
	Entry   StockEntry
}

// RemoveStock deletes a stock entry from a shop.
type RemoveStock struct {
	ShopRef string
	StockID string
}

// AdjustCurrency adds Delta to an actor's wallet. Negative amounts debit.
type AdjustCurrency struct {
	ActorRef string
	Delta    Wallet
}

// GrantItems creates new items on an actor and updates the quantity of existing ones.
type GrantItems struct {
	ActorRef string
	Create   []Item
	Update   []ItemUpdate
}

// UpsertReward inserts or replaces a reward entry of a quest.
type UpsertReward struct {
	QuestRef string
	Entry    RewardEntry
}

// RemoveReward deletes a reward entry from a quest.
type RemoveReward struct {
	QuestRef string
	RewardID string
}

// SetQuestComplete marks a quest as complete.
type SetQuestComplete struct {
	QuestRef string
}

func (UpsertStock) command() string      { return "upsert_stock" }
func (RemoveStock) command() string      { return "remove_stock" }
func (AdjustCurrency) command() string   { return "adjust_currency" }
func (GrantItems) command() string       { return "grant_items" }
func (UpsertReward) command() string     { return "upsert_reward" }
func (RemoveReward) command() string     { return "remove_reward" }
func (SetQuestComplete) command() string { return "set_quest_complete" }

// CommandName returns a short name of the command for logging.
func CommandName(c Command) string {
	return c.command()
}
