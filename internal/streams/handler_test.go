package streams

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/pulsecast/live-backend/internal/gateway"
)

type fakePresence struct {
	validateErr error
	reactErr    error
	current     int
	peak        int
	leaves      int
	reactions   []string
}

func (f *fakePresence) Validate(context.Context, uuid.UUID, *uuid.UUID) error {
	return f.validateErr
}

func (f *fakePresence) Join(context.Context, uuid.UUID, *uuid.UUID) (int, int, error) {
	return f.current, f.peak, nil
}

func (f *fakePresence) Leave(context.Context, uuid.UUID, *uuid.UUID) {
	f.leaves++
}

func (f *fakePresence) React(_ context.Context, _ uuid.UUID, _ *uuid.UUID, kind string) error {
	if f.reactErr != nil {
		return f.reactErr
	}
	f.reactions = append(f.reactions, kind)
	return nil
}

func presenceRouter(p Presence) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(nil, p, nil, zap.NewNop())
	r := gin.New()
	r.POST("/streams/:id/join", h.Join)
	r.POST("/streams/:id/leave", h.Leave)
	r.POST("/streams/:id/reactions", h.React)
	return r
}

func doPost(t *testing.T, r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJoinReturnsCounts(t *testing.T) {
	p := &fakePresence{current: 7, peak: 12}
	r := presenceRouter(p)

	w := doPost(t, r, "/streams/"+uuid.NewString()+"/join", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"current_viewers":7`)
	assert.Contains(t, w.Body.String(), `"peak_viewers":12`)
}

func TestJoinRejectionsMapToStatusCodes(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{gateway.ErrStreamNotFound, http.StatusNotFound},
		{gateway.ErrStreamNotLive, http.StatusConflict},
		{gateway.ErrUnknownUser, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		r := presenceRouter(&fakePresence{validateErr: tc.err})
		w := doPost(t, r, "/streams/"+uuid.NewString()+"/join", "")
		assert.Equal(t, tc.code, w.Code, tc.err.Error())
	}
}

func TestJoinRejectsBadStreamID(t *testing.T) {
	r := presenceRouter(&fakePresence{})
	w := doPost(t, r, "/streams/not-a-uuid/join", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLeaveAlwaysSucceeds(t *testing.T) {
	p := &fakePresence{}
	r := presenceRouter(p)

	w := doPost(t, r, "/streams/"+uuid.NewString()+"/leave", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 1, p.leaves)
}

func TestReactValidKind(t *testing.T) {
	p := &fakePresence{}
	r := presenceRouter(p)

	w := doPost(t, r, "/streams/"+uuid.NewString()+"/reactions", `{"reaction_type":"fire"}`)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"fire"}, p.reactions)
}

func TestReactUnknownKindIsBadRequest(t *testing.T) {
	r := presenceRouter(&fakePresence{reactErr: gateway.ErrUnknownReaction})
	w := doPost(t, r, "/streams/"+uuid.NewString()+"/reactions", `{"reaction_type":"skull"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
