package Adhoc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"NutBoltDetServer/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func healthy() service.Health {
	return service.Health{Status: "online", ModelLoaded: true, ClassNames: []string{"Bolt", "Nut"}}
}

func TestSendAliveMessage(t *testing.T) {
	var got RegisterRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/register", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(RegisterResponse{Id: got.Id, Success: true})
	}))
	defer srv.Close()

	cfg := RegServerConfig{Addr: srv.URL, AdvertiseIP: "10.0.0.7"}
	hb := NewHeartbeat(cfg, Node{HTTPPort: 5000, GRPCPort: 50051, InstanceClass: CpuInstance}, healthy, zaptest.NewLogger(t))
	require.NoError(t, hb.SendAliveMessage(context.Background()))

	assert.Equal(t, hb.ID(), got.Id)
	assert.Equal(t, "10.0.0.7", got.IP)
	assert.Equal(t, 5000, got.Port)
	assert.Equal(t, 50051, got.GRPCPort)
	assert.Equal(t, CpuInstance, got.InstanceClass)
	assert.True(t, got.ModelLoaded)
	assert.Equal(t, []string{"Bolt", "Nut"}, got.ClassNames)
	assert.NotZero(t, got.TimeStamp)
}

func TestSendAliveMessageErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":false}`))
	}))
	defer srv.Close()

	hb := NewHeartbeat(RegServerConfig{Addr: srv.URL}, Node{}, healthy, zaptest.NewLogger(t))
	assert.ErrorContains(t, hb.SendAliveMessage(context.Background()), "rejected")

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer down.Close()
	hb = NewHeartbeat(RegServerConfig{Addr: down.URL}, Node{}, healthy, zaptest.NewLogger(t))
	assert.ErrorContains(t, hb.SendAliveMessage(context.Background()), "503")
}

func TestRunUntilCancelled(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	cfg := RegServerConfig{Addr: srv.URL, Interval: 20 * time.Millisecond}
	hb := NewHeartbeat(cfg, Node{}, healthy, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go hb.Run(ctx, &wg)

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	wg.Wait()
}

func TestRegServerConfig(t *testing.T) {
	assert.False(t, RegServerConfig{}.Enabled())
	assert.Equal(t, "http://registry:8080/api/register", RegServerConfig{Addr: "registry", Port: 8080}.url())
	assert.Equal(t, "https://reg.example.com/api/register", RegServerConfig{Addr: "https://reg.example.com"}.url())
	assert.NotEmpty(t, OutboundIP())
}
