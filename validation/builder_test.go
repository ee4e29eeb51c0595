// Copyright (C) 2025 Mono Technologies Inc.
//
// This program is free software; you can redistribute it and/or
// modify it under the terms of the GNU General Public License
// as published by the Free Software Foundation; version 2.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.

package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCollectorEmpty(t *testing.T) {
	ec := NewCollector()
	ec.Check(nil)
	ec.CheckMsg(nil, "ignored")
	assert.NoError(t, ec.Error())
}

func TestErrorCollectorAccumulates(t *testing.T) {
	ec := NewCollector()
	ec.Check(errors.New("first problem"))
	ec.Check(nil)
	ec.Check(errors.New("second problem"))

	err := ec.Error()
	assert.ErrorContains(t, err, "first problem")
	assert.ErrorContains(t, err, "second problem")
}

func TestErrorCollectorContext(t *testing.T) {
	ec := NewCollector().WithContext("bridge br0")
	ec.Check(errors.New("bad address"))
	ec.CheckMsg(errors.New("bad name"), "port")

	err := ec.Error()
	assert.ErrorContains(t, err, "bridge br0: bad address")
	assert.ErrorContains(t, err, "bridge br0: port: bad name")
}
