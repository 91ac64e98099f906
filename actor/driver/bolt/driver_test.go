/*
 * MIT License
 *
 * Copyright (c) 2022-2025  Arsene Tochemey Gandote
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

package bolt

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gerrors "github.com/tochemey/coordinate/errors"
	"github.com/tochemey/coordinate/log"
)

func TestDriver(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "actors.db")

	driver, err := NewDriver(path, log.DiscardLogger)
	require.NoError(t, err)

	data, err := driver.ReadPersistedData(ctx, "counter/x")
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, driver.WritePersistedData(ctx, "counter/x", []byte(`{"count":3}`)))
	require.NoError(t, driver.Close(ctx))

	_, err = driver.ReadPersistedData(ctx, "counter/x")
	assert.ErrorIs(t, err, gerrors.ErrDriverClosed)

	// state survives a reopen
	reopened, err := NewDriver(path, log.DiscardLogger)
	require.NoError(t, err)
	data, err = reopened.ReadPersistedData(ctx, "counter/x")
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":3}`, string(data))
	require.NoError(t, reopened.Close(ctx))
}
