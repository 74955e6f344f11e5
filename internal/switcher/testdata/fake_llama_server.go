package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// parseArgs extracts host/port/model from argv and otherwise ignores
// whatever else buildArgv emitted (--ctx-size, --gpu-layers, --n-cpu-moe,
// --embeddings, --mlock, --flash-attn, --override-tensors, ...). Unlike
// the flag package, an unrecognized flag here is simply skipped rather
// than aborting the process, since the real llama-server accepts a much
// larger flag surface than this fixture needs to understand.
func parseArgs(args []string) (host, port, model string) {
	host, port = "127.0.0.1", "0"
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--host":
			if i+1 < len(args) {
				host = args[i+1]
				i++
			}
		case "--port":
			if i+1 < len(args) {
				port = args[i+1]
				i++
			}
		case "--model":
			if i+1 < len(args) {
				model = args[i+1]
				i++
			}
		}
	}
	return host, port, model
}

func main() {
	host, port, model := parseArgs(os.Args[1:])
	_ = model

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("/completion", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": "fake output",
			"timings": map[string]float64{
				"prompt_per_second":    123.4,
				"predicted_per_second": 56.7,
			},
		})
	})

	addr := fmt.Sprintf("%s:%s", host, port)
	srv := &http.Server{Addr: addr, Handler: mux}
	fmt.Printf("main: server is listening on http://%s:%s - starting the main loop\n", host, port)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	<-sigCh
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
