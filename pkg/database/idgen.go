package database

import (
	"github.com/google/uuid"

	"github.com/sjyun/fongo-sub000/pkg/document"
)

// IDGenerator produces _id values for documents inserted without one
type IDGenerator interface {
	NewID() document.Value
}

// IDGeneratorFunc adapts a function to IDGenerator
type IDGeneratorFunc func() document.Value

func (f IDGeneratorFunc) NewID() document.Value { return f() }

// ObjectIDGenerator assigns fresh ObjectIDs
type ObjectIDGenerator struct{}

func (ObjectIDGenerator) NewID() document.Value {
	return document.NewValue(document.NewObjectID())
}

// UUIDGenerator assigns random UUID strings
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() document.Value {
	return document.String(uuid.NewString())
}

func generatorByName(name string) IDGenerator {
	if name == IDGeneratorUUID {
		return UUIDGenerator{}
	}
	return ObjectIDGenerator{}
}
