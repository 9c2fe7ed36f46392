// Copyright (c) tracesim authors
// SPDX-License-Identifier: BSD-3-Clause

// Package outcome is the caller-visible result sum type (Design
// Notes "Inheritance hierarchy of errors" → a single sum type with a small
// struct per variant and user messages kept in a table, not in types).
package outcome

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code is one of the seven caller-visible outcomes.
type Code string

const (
	OK               Code = "ok"
	NoPath           Code = "no_path"
	NotFound         Code = "not_found"
	NoLinuxRouters   Code = "no_linux_routers"
	InvalidInput     Code = "invalid_input"
	Configuration    Code = "configuration"
	Internal         Code = "internal"
)

// ExitCode maps a Code to the process's exit code.
func (c Code) ExitCode() int {
	switch c {
	case OK:
		return 0
	case NoPath:
		return 1
	case NotFound:
		return 2
	case NoLinuxRouters:
		return 4
	default: // InvalidInput, Configuration, Internal
		return 10
	}
}

var messages = map[Code]string{
	OK:             "path found",
	NoPath:         "no route connects the source and destination",
	NotFound:       "source address is not part of the fleet, or the destination is unreachable",
	NoLinuxRouters: "the live trace produced no hop indexable to a known Linux router",
	InvalidInput:   "one or more addresses could not be parsed",
	Configuration:  "the request is missing required configuration (controller address or facts directory)",
	Internal:       "an unexpected internal error occurred",
}

var suggestions = map[Code][]string{
	NotFound:       {"verify the source address belongs to a router or a connected network in the facts directory"},
	NoLinuxRouters: {"check that at least one router in the live-trace path is marked is_linux in its facts"},
	Configuration:  {"set controller_ip in the config file or pass --controller-ip", "set tsim_facts or pass --tsim-facts"},
}

// Outcome is the caller-visible result: a Code, a user-directed message, and
// optional suggestions. The pkg/errors cause chain is kept privately and
// rendered only by Detail — it is never surfaced in the plain message.
type Outcome struct {
	Code        Code
	Message     string
	Suggestions []string
	cause       error
}

// New builds an Outcome with the table-default message for code.
func New(code Code) Outcome {
	return Outcome{Code: code, Message: messages[code], Suggestions: suggestions[code]}
}

// Wrap builds an Outcome from an underlying error, classifying it at a
// well-defined decision point. context is
// appended to the default message ("offending address", "last successful
// hop", etc.).
func Wrap(code Code, err error, context string) Outcome {
	o := New(code)
	if context != "" {
		o.Message = fmt.Sprintf("%s: %s", o.Message, context)
	}
	o.cause = errors.WithStack(err)
	return o
}

// Error implements the error interface so Outcome can travel through
// ordinary Go error-returning signatures when convenient.
func (o Outcome) Error() string { return string(o.Code) + ": " + o.Message }

// Detail renders the pkg/errors cause chain, for verbose_level >= 2.
func (o Outcome) Detail() string {
	if o.cause == nil {
		return ""
	}
	return fmt.Sprintf("%+v", o.cause)
}

// WrapInternal wraps an unexpected programming defect as an Internal
// outcome with the table-default message; Detail renders its cause chain.
func WrapInternal(err error) Outcome {
	o := New(Internal)
	o.cause = errors.WithStack(err)
	return o
}
