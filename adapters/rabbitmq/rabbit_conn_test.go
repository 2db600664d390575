package rabbitmq_test

import (
	"errors"
	"testing"

	"github.com/next-trace/scg-chain-relay/adapters/rabbitmq"
	berr "github.com/next-trace/scg-chain-relay/contract/errors"
)

func TestNewWithAMQPConn_EmptyURL(t *testing.T) {
	_, _, err := rabbitmq.NewWithAMQPConn(rabbitmq.Config{URL: "", ConnTimeout: 0})
	if err == nil {
		t.Fatalf("expected error for empty URL")
	}

	if !errors.Is(err, berr.ErrSubscribeFailed) {
		t.Fatalf("want ErrSubscribeFailed, got %v", err)
	}
}
