package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// Role identifies who authored a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ResponseType tags the structured payload carried by a message.
type ResponseType string

const (
	TypeText              ResponseType = "text"
	TypeProductList       ResponseType = "product_list"
	TypeProductDetail     ResponseType = "product_detail"
	TypeProductComparison ResponseType = "product_comparison"
)

// Message is a single turn entry. Messages are immutable once appended to a session.
type Message struct {
	ID        string       `json:"id"` // ULID
	Role      Role         `json:"role"`
	Content   string       `json:"content"`
	Type      ResponseType `json:"type"`
	Data      any          `json:"metadata,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// NewMessage builds a message with a fresh ULID and the current time.
func NewMessage(role Role, content string, typ ResponseType, data any) Message {
	if typ == "" {
		typ = TypeText
	}
	if typ == TypeText {
		data = nil
	}
	return Message{
		ID:        ulid.Make().String(),
		Role:      role,
		Content:   content,
		Type:      typ,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// ChatSession is an ordered conversation keyed by an opaque identifier.
type ChatSession struct {
	ID        string    `json:"id"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProductListData is the payload of a product_list message.
type ProductListData struct {
	Products []ProductRef `json:"products"`
}

// ProductDetailData is the payload of a product_detail message.
type ProductDetailData struct {
	Product Product `json:"product"`
}

// ProductComparisonData is the payload of a product_comparison message.
// Unresolved lists requested ids that no backend could find.
type ProductComparisonData struct {
	Products   []Product `json:"products"`
	Unresolved []string  `json:"unresolved,omitempty"`
}

// UnmarshalJSON decodes the metadata payload into the concrete type named by Type.
func (m *Message) UnmarshalJSON(b []byte) error {
	type plain Message
	var raw struct {
		plain
		Data json.RawMessage `json:"metadata,omitempty"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*m = Message(raw.plain)
	m.Data = nil
	if len(raw.Data) == 0 || string(raw.Data) == "null" {
		return nil
	}

	var err error
	switch m.Type {
	case TypeProductList:
		var d ProductListData
		err = json.Unmarshal(raw.Data, &d)
		m.Data = d
	case TypeProductDetail:
		var d ProductDetailData
		err = json.Unmarshal(raw.Data, &d)
		m.Data = d
	case TypeProductComparison:
		var d ProductComparisonData
		err = json.Unmarshal(raw.Data, &d)
		m.Data = d
	}
	if err != nil {
		return fmt.Errorf("decode %s metadata: %w", m.Type, err)
	}
	return nil
}
