// Package protocol defines the ';'-separated line protocol spoken between clients,
// the gateway and the backend workers.
package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// Separator splits the fields of every message on the wire.
const Separator = ";"

// minRequestFields is the operation plus user and password.
const minRequestFields = 3

var (
	ErrNotEnoughFields  = errors.New("not enough fields")
	ErrWrongArity       = errors.New("wrong number of fields for operation")
	ErrUnknownOperation = errors.New("unknown operation")
	ErrEmptyField       = errors.New("empty field")
)

// Operation is a client-facing account operation.
type Operation string

const (
	OpCreate    Operation = "CRIAR"
	OpRemove    Operation = "REMOVER"
	OpBalance   Operation = "SALDO"
	OpStatement Operation = "EXTRATO"
	OpDeposit   Operation = "DEPOSITAR"
	OpWithdraw  Operation = "SACAR"
	OpTransfer  Operation = "TRANSFERIR"
)

// exactFields holds the total field count of the arity-sensitive operations.
// Operations missing from the map only need minRequestFields.
var exactFields = map[Operation]int{
	OpDeposit:  4,
	OpWithdraw: 4,
	OpTransfer: 5,
}

var knownOperations = map[Operation]bool{
	OpCreate:    true,
	OpRemove:    true,
	OpBalance:   true,
	OpStatement: true,
	OpDeposit:   true,
	OpWithdraw:  true,
	OpTransfer:  true,
}

// Request is a validated client request.
type Request struct {
	Op   Operation
	Args []string

	// Raw is the request text exactly as it travels to the worker.
	Raw string
}

// User returns the account user the request acts on.
func (r Request) User() string {
	return r.Args[0]
}

func (r Request) String() string {
	return r.Raw
}

// ParseRequest validates a client request against the operation grammar.
// Surrounding whitespace is ignored; the returned error wraps one of
// ErrNotEnoughFields, ErrWrongArity, ErrUnknownOperation or ErrEmptyField.
func ParseRequest(raw string) (Request, error) {
	raw = strings.TrimSpace(raw)
	fields := strings.Split(raw, Separator)

	if len(fields) < minRequestFields {
		return Request{}, fmt.Errorf("%w: got %d, need at least %d", ErrNotEnoughFields, len(fields), minRequestFields)
	}

	op := Operation(fields[0])
	if !knownOperations[op] {
		return Request{}, fmt.Errorf("%w: %q", ErrUnknownOperation, fields[0])
	}

	if want, ok := exactFields[op]; ok && len(fields) != want {
		return Request{}, fmt.Errorf("%w: %s takes %d fields, got %d", ErrWrongArity, op, want, len(fields))
	}

	for i, f := range fields {
		if f == "" {
			return Request{}, fmt.Errorf("%w: position %d", ErrEmptyField, i)
		}
	}

	return Request{
		Op:   op,
		Args: fields[1:],
		Raw:  raw,
	}, nil
}

// IsClientRequest reports whether raw is a well-formed client request.
func IsClientRequest(raw string) bool {
	_, err := ParseRequest(raw)
	return err == nil
}
