package dispatch

import (
	"strings"

	"github.com/codefionn/huddle/internal/protocol"
)

// Entity is an entity kind addressable by the generic protocol.
type Entity int

const (
	EntityTask Entity = iota + 1
	EntityItem
)

var entityNames = map[Entity]string{
	EntityTask: "task",
	EntityItem: "item",
}

func (e Entity) String() string {
	if name, ok := entityNames[e]; ok {
		return name
	}
	return "unknown"
}

// ParseEntity resolves an entity name.
func ParseEntity(s string) (Entity, error) {
	for e, name := range entityNames {
		if name == s {
			return e, nil
		}
	}
	return 0, protocol.NewError(protocol.CodeUnknownEntity, "No entity found with name %s", s)
}

// Action is a mutation verb.
type Action int

const (
	ActionCreate Action = iota + 1
	ActionUpdate
	ActionDelete
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// ParseAction resolves an action name.
func ParseAction(s string) (Action, error) {
	switch s {
	case "create":
		return ActionCreate, nil
	case "update":
		return ActionUpdate, nil
	case "delete":
		return ActionDelete, nil
	default:
		return 0, protocol.NewError(protocol.CodeUnknownAction, "No action found with name %s", s)
	}
}

// Discriminator is a parsed "entity.action" message type.
type Discriminator struct {
	Entity Entity
	Action Action
}

func (d Discriminator) String() string {
	return d.Entity.String() + "." + d.Action.String()
}

// ParseDiscriminator splits s into its entity and action. The entity is
// resolved before the action, so "bogus.bogus" reports the entity.
func ParseDiscriminator(s string) (Discriminator, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 2 {
		return Discriminator{}, protocol.NewError(protocol.CodeMalformedDiscriminator, "Format must be 'ENTITY.ACTION'")
	}
	entity, err := ParseEntity(parts[0])
	if err != nil {
		return Discriminator{}, err
	}
	action, err := ParseAction(parts[1])
	if err != nil {
		return Discriminator{}, err
	}
	return Discriminator{Entity: entity, Action: action}, nil
}
