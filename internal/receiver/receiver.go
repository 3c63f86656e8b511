// Package receiver applies create, update and delete mutations for one
// entity kind on behalf of one principal.
//
// A Receiver is generic over the entity type. Storage scopes every lookup to
// the owning principal, so ids of other principals are simply not found.
// Schema turns loosely typed wire fields into a validated entity and back.
package receiver

import (
	"context"
	"errors"

	"github.com/codefionn/huddle/internal/identity"
	"github.com/codefionn/huddle/internal/protocol"
)

// Fields is the payload of an inbound envelope or of a result.
type Fields map[string]any

// Storage is the owner-scoped persistence capability for entity E.
// Get, Update and Delete return an error matching protocol.ErrNotFound when
// the entity is absent or belongs to another principal.
type Storage[E any] interface {
	Get(ctx context.Context, owner identity.Principal, id int64) (*E, error)
	Create(ctx context.Context, owner identity.Principal, entity *E) (*E, error)
	Update(ctx context.Context, owner identity.Principal, entity *E) (*E, error)
	Delete(ctx context.Context, owner identity.Principal, id int64) error
}

// Schema validates and serializes entity E.
type Schema[E any] interface {
	// Decode builds the entity to persist from fields. existing is nil on
	// create and the stored instance on update.
	Decode(ctx context.Context, owner identity.Principal, fields Fields, existing *E) (*E, FieldErrors)
	// Encode renders the canonical representation of entity.
	Encode(entity *E) Fields
}

// Receiver handles mutations of one entity kind for one principal.
type Receiver[E any] struct {
	kind    string
	owner   identity.Principal
	storage Storage[E]
	schema  Schema[E]
}

// New creates a receiver. kind names the entity in error messages.
func New[E any](kind string, owner identity.Principal, storage Storage[E], schema Schema[E]) *Receiver[E] {
	return &Receiver[E]{kind: kind, owner: owner, storage: storage, schema: schema}
}

// Kind returns the entity name the receiver was created with.
func (r *Receiver[E]) Kind() string { return r.kind }

// Create validates fields and persists a new entity owned by the receiver's
// principal.
func (r *Receiver[E]) Create(ctx context.Context, fields Fields) (Fields, error) {
	entity, fe := r.schema.Decode(ctx, r.owner, fields, nil)
	if !fe.Empty() {
		return nil, fe.Err()
	}
	created, err := r.storage.Create(ctx, r.owner, entity)
	if err != nil {
		return nil, r.storageError(err, 0)
	}
	return r.schema.Encode(created), nil
}

// Update loads the entity named by fields["id"], merges fields into it and
// persists the result.
func (r *Receiver[E]) Update(ctx context.Context, fields Fields) (Fields, error) {
	id, err := ParseID(fields)
	if err != nil {
		return nil, err
	}
	existing, err := r.storage.Get(ctx, r.owner, id)
	if err != nil {
		return nil, r.storageError(err, id)
	}
	entity, fe := r.schema.Decode(ctx, r.owner, fields, existing)
	if !fe.Empty() {
		return nil, fe.Err()
	}
	updated, err := r.storage.Update(ctx, r.owner, entity)
	if err != nil {
		return nil, r.storageError(err, id)
	}
	return r.schema.Encode(updated), nil
}

// Delete removes the entity named by fields["id"] and returns {"id": id}.
func (r *Receiver[E]) Delete(ctx context.Context, fields Fields) (Fields, error) {
	id, err := ParseID(fields)
	if err != nil {
		return nil, err
	}
	if err := r.storage.Delete(ctx, r.owner, id); err != nil {
		return nil, r.storageError(err, id)
	}
	return Fields{"id": id}, nil
}

func (r *Receiver[E]) storageError(err error, id int64) error {
	var pe *protocol.Error
	switch {
	case errors.Is(err, protocol.ErrNotFound):
		if id == 0 {
			return protocol.WrapError(protocol.CodeNotFound, "No "+r.kind+" found", err)
		}
		return &protocol.Error{
			Code:    protocol.CodeNotFound,
			Message: "No " + r.kind + " found with id " + formatID(id),
			Cause:   err,
		}
	case errors.As(err, &pe):
		return err
	default:
		return protocol.WrapError(protocol.CodeInternal, "Internal error", err)
	}
}
