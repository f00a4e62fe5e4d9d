package models

import (
	"strings"

	"github.com/google/uuid"
)

// Person is a registered person. Values are never mutated after NewPerson.
type Person struct {
	ID        uuid.UUID `json:"id"`
	Nickname  string    `json:"nickname"`
	Name      string    `json:"name"`
	Birthdate Date      `json:"birthdate"`
	// Stack is nil when the person did not send one, which is not the same as an empty stack.
	Stack []string `json:"stack"`
}

// NewPerson creates a Person with a time-ordered UUID
func NewPerson(nickname, name string, birthdate Date, stack []string) (*Person, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}

	return &Person{
		ID:        id,
		Nickname:  nickname,
		Name:      name,
		Birthdate: birthdate,
		Stack:     stack,
	}, nil
}

// SearchText is the value matched by term searches: stack entries, nickname and name
// concatenated without separators.
func (p *Person) SearchText() string {
	var b strings.Builder
	for _, s := range p.Stack {
		b.WriteString(s)
	}
	b.WriteString(p.Nickname)
	b.WriteString(p.Name)
	return b.String()
}
