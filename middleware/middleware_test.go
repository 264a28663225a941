package middleware_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/krisalay/query-cache/middleware"
)

type recordingHook struct {
	name string
	log  *[]string
}

func (h recordingHook) Before(_ context.Context, op middleware.Op, key string) {
	*h.log = append(*h.log, h.name+" before "+string(op)+" "+key)
}

func (h recordingHook) After(_ context.Context, op middleware.Op, key string, err error) {
	suffix := " ok"
	if err != nil {
		suffix = " err"
	}
	*h.log = append(*h.log, h.name+" after "+string(op)+" "+key+suffix)
}

func TestChainBracketsInOrder(t *testing.T) {
	var log []string
	chain := middleware.Chain{
		recordingHook{"outer", &log},
		recordingHook{"inner", &log},
	}

	ctx := context.Background()
	chain.Before(ctx, middleware.OpQuery, "k")
	chain.After(ctx, middleware.OpQuery, "k", nil)

	assert.Equal(t, []string{
		"outer before query k",
		"inner before query k",
		"inner after query k ok",
		"outer after query k ok",
	}, log)
}

func TestChainPassesErrorsThrough(t *testing.T) {
	var log []string
	chain := middleware.Chain{recordingHook{"h", &log}}

	ctx := context.Background()
	chain.After(ctx, middleware.OpInvalidate, "k", errors.New("boom"))

	assert.Equal(t, []string{"h after invalidate k err"}, log)
}

func TestEmptyChainIsANoOp(t *testing.T) {
	var chain middleware.Chain
	ctx := context.Background()
	chain.Before(ctx, middleware.OpQuery, "k")
	chain.After(ctx, middleware.OpQuery, "k", nil)
}
