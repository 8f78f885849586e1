// Package models defines the data structures used throughout the application.
// It includes the persisted records (shops, stock, actors, items, quests, calendar events),
// the request and result payloads exchanged over the query boundary, and the typed
// mutation commands applied by the storage layer.
package models

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned by storage lookups when a referenced record does not exist.
var ErrNotFound = errors.New("models: record not found")

// Item types recognised by the shop and reward collections.
const (
	ItemTypeConsumable = "consumable"
	ItemTypeContainer  = "container"
	ItemTypeEquipment  = "equipment"
	ItemTypeLoot       = "loot"
	ItemTypeTool       = "tool"
	ItemTypeWeapon     = "weapon"
)

// AllowedItemTypes lists the item types that may be stocked in a shop or granted as a reward.
var AllowedItemTypes = map[string]bool{
	ItemTypeConsumable: true,
	ItemTypeContainer:  true,
	ItemTypeEquipment:  true,
	ItemTypeLoot:       true,
	ItemTypeTool:       true,
	ItemTypeWeapon:     true,
}

// AuthRequest represents the authentication request payload.
// It contains the username and password provided by the user.
type AuthRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse represents the authentication response payload.
// It contains the generated token upon successful authentication.
type AuthResponse struct {
	Token string `json:"token"`
}

// ErrorResponse represents a generic error response payload.
// It contains a string describing the encountered error.
type ErrorResponse struct {
	Errors string `json:"errors"`
}

// User represents a connected player or game master. Game master status is carried by the
// session token, not by the stored user.
type User struct {
	ID       int32
	Username string
	Password string
}

// Wallet maps a currency denomination key to the number of coins held.
type Wallet map[string]int64

// Clone returns an independent copy of the wallet.
func (w Wallet) Clone() Wallet {
	out := make(Wallet, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

// Price is a stored price whose value may be unset, in which case it is derived at read time.
type Price struct {
	Value        decimal.NullDecimal `json:"value"`
	Denomination string              `json:"denomination"`
}

// Cost is a fully resolved amount of a single denomination.
type Cost struct {
	Value        decimal.Decimal `json:"value"`
	Denomination string          `json:"denomination"`
}

// Item is an item resource: either a template that can be referenced by stock and rewards,
// or an item owned by an actor. Containers carry their nested contents.
type Item struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Quantity    int    `json:"quantity"`
	Price       Cost   `json:"price"`
	SourceRef   string `json:"sourceRef,omitempty"`
	ContainerID string `json:"containerId,omitempty"`
	Contents    []Item `json:"contents,omitempty"`
}

// ItemUpdate sets the quantity of an existing owned item.
// Delta records how much of Quantity was added by the update.
type ItemUpdate struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
	Delta    int    `json:"delta"`
}

// Actor is a character that holds currency and owns items.
type Actor struct {
	Ref      string `json:"ref"`
	Name     string `json:"name"`
	Currency Wallet `json:"currency"`
	Items    []Item `json:"items"`
}

// StockPrice holds the per-unit and full-stack prices of a stock entry.
type StockPrice struct {
	Each  Price `json:"each"`
	Stack Price `json:"stack"`
}

// StockEntry is one sellable line in a shop.
// A nil Quantity defaults to the referenced item's natural quantity.
type StockEntry struct {
	ID       string     `json:"id"`
	ItemRef  string     `json:"itemRef"`
	Alias    string     `json:"alias,omitempty"`
	Price    StockPrice `json:"price"`
	Quantity *int       `json:"quantity"`
}

// Shop is a shop page with its stock.
type Shop struct {
	Ref      string       `json:"ref"`
	Name     string       `json:"name"`
	OwnerRef string       `json:"ownerRef,omitempty"`
	Stock    []StockEntry `json:"stock"`
}

// RewardEntry is one item grant line in a quest's reward set.
// A nil Quantity defaults to the referenced item's natural quantity.
type RewardEntry struct {
	ID       string `json:"id"`
	ItemRef  string `json:"itemRef"`
	Quantity *int   `json:"quantity"`
}

// Quest types.
const (
	QuestTypeMajor = "major"
	QuestTypeSide  = "side"
	QuestTypeMinor = "minor"
)

// Rewards holds the item and currency rewards of a quest.
type Rewards struct {
	Items    []RewardEntry `json:"items"`
	Currency Wallet        `json:"currency"`
}

// Quest is a quest page.
type Quest struct {
	Ref      string  `json:"ref"`
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Complete bool    `json:"complete"`
	Rewards  Rewards `json:"rewards"`
}

// EventDate is a calendar date given as a zero-indexed day of the year and a year.
type EventDate struct {
	Day  int `json:"day"`
	Year int `json:"year"`
}

// Repeat policies of calendar events.
const (
	RepeatNone    = ""
	RepeatYearly  = "year"
	RepeatMonthly = "month"
)

// CalendarEvent links a set of pages to a date range that may repeat yearly.
type CalendarEvent struct {
	ID       string    `json:"id"`
	Date     EventDate `json:"date"`
	Duration int       `json:"duration"`
	Repeat   string    `json:"repeat"`
	Pages    []string  `json:"pages"`
}

// PurchaseRequest is a request to buy a quantity of a stock entry on behalf of a buyer.
type PurchaseRequest struct {
	ShopRef  string `json:"shopRef"`
	StockID  string `json:"stockId"`
	BuyerRef string `json:"buyerRef"`
	Quantity int    `json:"quantity"`
}

// GrantRewardsRequest is a request to grant a quest's rewards to an actor.
type GrantRewardsRequest struct {
	QuestRef string `json:"questRef"`
	ActorRef string `json:"actorRef"`
	Complete bool   `json:"complete"`
}

// Query types handled by the query dispatcher.
const (
	QueryPurchase     = "purchase"
	QueryGrantRewards = "grantRewards"
)

// Query is the tagged request accepted by the query dispatcher.
// Exactly one payload matching Type is expected to be set.
type Query struct {
	Type         string               `json:"type"`
	Purchase     *PurchaseRequest     `json:"purchase,omitempty"`
	GrantRewards *GrantRewardsRequest `json:"grantRewards,omitempty"`
}

// Failure codes carried by QueryResult.
const (
	CodeStockNotFound     = "stock_not_found"
	CodeQuantityExceeded  = "quantity_exceeded"
	CodeInsufficientFunds = "insufficient_funds"
	CodeInvalidRequest    = "invalid_request"
	CodeNoRewards         = "no_rewards"
	CodeQuestNotFound     = "quest_not_found"
	CodeActorNotFound     = "actor_not_found"
	CodeTimeout           = "timeout"
	CodeInternal          = "internal"
)

// QueryResult is the structured outcome of a query. Failures carry a machine-readable
// Code and a human-readable Reason; successes may carry the operation's receipt in Data.
type QueryResult struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// StockListing is a stock entry with its derived label, quantity and prices.
type StockListing struct {
	ID       string `json:"id"`
	ItemRef  string `json:"itemRef"`
	Label    string `json:"label"`
	Type     string `json:"type"`
	Quantity int    `json:"quantity"`
	Each     Cost   `json:"each"`
	Stack    Cost   `json:"stack"`
}

// StockEdit holds the editable fields of a stock entry. Nil fields are left unchanged.
type StockEdit struct {
	Alias    *string `json:"alias,omitempty"`
	Each     *Price  `json:"each,omitempty"`
	Stack    *Price  `json:"stack,omitempty"`
	Quantity *int    `json:"quantity,omitempty"`
}

// StoreEventRequest is the payload for storing a calendar event.
type StoreEventRequest struct {
	Pages    []string  `json:"pages"`
	Date     EventDate `json:"date"`
	Duration int       `json:"duration"`
	Repeat   string    `json:"repeat"`
}

// AddRefRequest carries an item reference to add to stock or rewards.
type AddRefRequest struct {
	ItemRef string `json:"itemRef"`
}
