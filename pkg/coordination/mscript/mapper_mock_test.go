package mscript

import (
	"context"
	"reflect"
	"testing"

	"go.uber.org/mock/gomock"
)

// MockMapper is a hand-written stand-in for what `mockgen -source=mapper.go`
// would generate; kept by hand since the toolchain isn't run in this
// environment. It lets a test inject a Mapper that doesn't spawn real
// goroutines and asserts exactly how Run called into it.
type MockMapper struct {
	ctrl     *gomock.Controller
	recorder *MockMapperRecorder
}

type MockMapperRecorder struct {
	mock *MockMapper
}

func NewMockMapper(ctrl *gomock.Controller) *MockMapper {
	m := &MockMapper{ctrl: ctrl}
	m.recorder = &MockMapperRecorder{m}
	return m
}

func (m *MockMapper) EXPECT() *MockMapperRecorder { return m.recorder }

func (m *MockMapper) Map(ctx context.Context, fn func(item interface{}) interface{}, items []interface{}) []interface{} {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Map", ctx, fn, items)
	out, _ := ret[0].([]interface{})
	return out
}

func (mr *MockMapperRecorder) Map(ctx, fn, items interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Map", reflect.TypeOf((*MockMapper)(nil).Map), ctx, fn, items)
}

func TestRunner_UsesInjectedMapperExactlyOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	mapper := NewMockMapper(ctrl)

	servers := newMiniredisServers(t, 2)
	mapper.EXPECT().Map(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, fn func(item interface{}) interface{}, items []interface{}) []interface{} {
			out := make([]interface{}, len(items))
			for i, item := range items {
				out[i] = fn(item)
			}
			return out
		},
	)

	r := NewRunner(echoScripts, WithMapper(mapper))
	results := r.Run(context.Background(), "get", servers, []string{"k"}, nil)

	if len(results) != len(servers) {
		t.Fatalf("expected %d results, got %d", len(servers), len(results))
	}
	// "k" was never set on either miniredis server, so GET returns a nil
	// reply, which go-redis surfaces as redis.Nil and every slot carries an
	// error: this test is only verifying the Mapper contract (called once,
	// one entry per item), not script success.
	for _, res := range results {
		if res.Succeeded() {
			t.Fatalf("expected an error slot for the unset key, got success")
		}
	}
}
