// Package sshtransportmock provides a hand-maintained mock.Mock-style
// implementation of sshtransport.HostCallbacks, in the shape
// go.uber.org/mock/mockgen would generate from
// `mockgen -source=driver.go -destination=sshtransportmock/sshtransportmock.go`.
// Kept hand-written rather than generated since mockgen is not run as part
// of this build.
package sshtransportmock

import (
	"context"
	"reflect"

	"go.uber.org/mock/gomock"

	"github.com/coinstash/sshgatewayd/internal/sshtransport"
)

// MockHostCallbacks is a mock of the HostCallbacks interface.
type MockHostCallbacks struct {
	ctrl     *gomock.Controller
	recorder *MockHostCallbacksMockRecorder
}

// MockHostCallbacksMockRecorder is the mock recorder for MockHostCallbacks.
type MockHostCallbacksMockRecorder struct {
	mock *MockHostCallbacks
}

// NewMockHostCallbacks creates a new mock instance.
func NewMockHostCallbacks(ctrl *gomock.Controller) *MockHostCallbacks {
	mock := &MockHostCallbacks{ctrl: ctrl}
	mock.recorder = &MockHostCallbacksMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockHostCallbacks) EXPECT() *MockHostCallbacksMockRecorder {
	return m.recorder
}

// SignKex mocks base method.
func (m *MockHostCallbacks) SignKex(ctx context.Context, params sshtransport.KexParams) (sshtransport.KexResponse, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "SignKex", ctx, params)
	ret0, _ := ret[0].(sshtransport.KexResponse)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// SignKex indicates an expected call of SignKex.
func (mr *MockHostCallbacksMockRecorder) SignKex(ctx, params interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "SignKex", reflect.TypeOf((*MockHostCallbacks)(nil).SignKex), ctx, params)
}

// VerifyPassword mocks base method.
func (m *MockHostCallbacks) VerifyPassword(ctx context.Context, user, service, password string) (bool, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "VerifyPassword", ctx, user, service, password)
	ret0, _ := ret[0].(bool)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// VerifyPassword indicates an expected call of VerifyPassword.
func (mr *MockHostCallbacksMockRecorder) VerifyPassword(ctx, user, service, password interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "VerifyPassword", reflect.TypeOf((*MockHostCallbacks)(nil).VerifyPassword), ctx, user, service, password)
}

// CheckPublicKey mocks base method.
func (m *MockHostCallbacks) CheckPublicKey(ctx context.Context, user, service, algo string, pubKeyBlob []byte) (bool, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "CheckPublicKey", ctx, user, service, algo, pubKeyBlob)
	ret0, _ := ret[0].(bool)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// CheckPublicKey indicates an expected call of CheckPublicKey.
func (mr *MockHostCallbacksMockRecorder) CheckPublicKey(ctx, user, service, algo, pubKeyBlob interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "CheckPublicKey", reflect.TypeOf((*MockHostCallbacks)(nil).CheckPublicKey), ctx, user, service, algo, pubKeyBlob)
}

// VerifySignature mocks base method.
func (m *MockHostCallbacks) VerifySignature(ctx context.Context, user, service, algo string, pubKeyBlob, signature, signedData []byte) (bool, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "VerifySignature", ctx, user, service, algo, pubKeyBlob, signature, signedData)
	ret0, _ := ret[0].(bool)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// VerifySignature indicates an expected call of VerifySignature.
func (mr *MockHostCallbacksMockRecorder) VerifySignature(ctx, user, service, algo, pubKeyBlob, signature, signedData interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "VerifySignature", reflect.TypeOf((*MockHostCallbacks)(nil).VerifySignature), ctx, user, service, algo, pubKeyBlob, signature, signedData)
}

var _ sshtransport.HostCallbacks = (*MockHostCallbacks)(nil)
