package web

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"motionhub/internal/ctrl"
	"motionhub/internal/motion"
)

// MotionAPI is the part of motion.State the web UI reads and toggles.
// Implementations must be safe to call concurrently.
type MotionAPI interface {
	Snapshot() motion.Snapshot
	SetSampling(on bool)
	SetGyroBiasCorrection(on bool)
}

// Reprober re-runs the device sensor probe.
type Reprober interface {
	Reprobe(ctx context.Context) (bool, error)
}

// ControllerLister lists connected controllers.
type ControllerLister interface {
	Controllers() []ctrl.Info
}

// Deps are the services behind the HTTP API. Only Motion is required.
type Deps struct {
	Motion      MotionAPI
	Reprobe     Reprober
	Controllers ControllerLister
	Stream      *SnapshotBroadcaster
	Logs        *LogBuffer

	// DeviceBackend is reported by /api/about.
	DeviceBackend string
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // local network tool, any origin
	},
}

type toggleRequest struct {
	Enabled *bool `json:"enabled"`
}

func Handler(d Deps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/motion", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, d.Motion.Snapshot())
	})

	mux.HandleFunc("/api/motion/sampling", toggleHandler(d.Motion.SetSampling))
	mux.HandleFunc("/api/motion/bias", toggleHandler(d.Motion.SetGyroBiasCorrection))

	mux.HandleFunc("/api/motion/reprobe", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if d.Reprobe == nil {
			http.Error(w, "reprobe unavailable", http.StatusNotFound)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		ok, err := d.Reprobe.Reprobe(ctx)
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, struct {
			DeviceMotionSupport bool `json:"device_motion_support"`
		}{ok})
	})

	mux.HandleFunc("/api/controllers", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		list := []ctrl.Info{}
		if d.Controllers != nil {
			list = append(list, d.Controllers.Controllers()...)
		}
		writeJSON(w, struct {
			Controllers []ctrl.Info `json:"controllers"`
		}{list})
	})

	if d.Stream != nil {
		mux.HandleFunc("/ws/motion", streamHandler(d.Stream))
	}
	if d.Logs != nil {
		mux.Handle("/api/logs", d.Logs.Handler())
	}
	mux.HandleFunc("/api/about", aboutHandler(d))

	return mux
}

func toggleHandler(set func(bool)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req toggleRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<10)).Decode(&req); err != nil || req.Enabled == nil {
			http.Error(w, `body must be {"enabled":true|false}`, http.StatusBadRequest)
			return
		}
		set(*req.Enabled)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("{\"ok\":true}\n"))
	}
}

func streamHandler(b *SnapshotBroadcaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("web: websocket upgrade error: %v", err)
			return
		}
		defer conn.Close()

		id, ch := b.Subscribe(8)
		defer b.Unsubscribe(id)

		// The stream is one-way; reading only notices the peer closing.
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-gone:
				return
			case snap, ok := <-ch:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
				if err := conn.WriteJSON(snap); err != nil {
					return
				}
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n"))
}

func Serve(ctx context.Context, listenAddr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MiB
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
