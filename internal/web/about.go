package web

import (
	"net/http"
	"runtime"
	"runtime/debug"
	"time"
)

// AboutResponse describes the running build and what it is fusing.
type AboutResponse struct {
	Service             string `json:"service"`
	NowUTC              string `json:"now_utc"`
	GoVersion           string `json:"go_version"`
	Version             string `json:"version,omitempty"`
	Commit              string `json:"commit,omitempty"`
	DeviceBackend       string `json:"device_backend,omitempty"`
	DeviceMotionSupport bool   `json:"device_motion_support"`
	Sampling            bool   `json:"sampling"`
	Controllers         int    `json:"controllers"`
}

func aboutHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		snap := d.Motion.Snapshot()
		resp := AboutResponse{
			Service:             "motionhub",
			NowUTC:              time.Now().UTC().Format(time.RFC3339Nano),
			GoVersion:           runtime.Version(),
			DeviceBackend:       d.DeviceBackend,
			DeviceMotionSupport: snap.DeviceMotionSupport,
			Sampling:            snap.Sampling,
		}
		if d.Controllers != nil {
			resp.Controllers = len(d.Controllers.Controllers())
		}
		if bi, ok := debug.ReadBuildInfo(); ok {
			resp.Version = bi.Main.Version
			for _, s := range bi.Settings {
				if s.Key == "vcs.revision" {
					resp.Commit = s.Value
				}
			}
		}
		writeJSON(w, resp)
	}
}
