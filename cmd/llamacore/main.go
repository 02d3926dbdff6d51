// llamacore is a thin CLI over internal/session: load a model, tokenize a
// prompt, and sample tokens one at a time until -n is reached. It mirrors
// the teacher's cmd/quarrel (metrics server, signal handling, flag shape)
// pointed at the session API instead of a CPUEngine.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/llamacore/llamacore/internal/config"
	"github.com/llamacore/llamacore/internal/embedexport"
	"github.com/llamacore/llamacore/internal/logger"
	"github.com/llamacore/llamacore/internal/sampler"
	"github.com/llamacore/llamacore/internal/session"
)

var (
	modelPath   = flag.String("model", "", "path to a GGML-format model file")
	prompt      = flag.String("prompt", "Hello", "prompt to generate from")
	numTokens   = flag.Int("n", 32, "number of tokens to generate")
	nCtx        = flag.Int("ctx", 512, "context window size")
	seed        = flag.Int64("seed", 0, "RNG seed (<=0 means current time)")
	topK        = flag.Int("top-k", 40, "top-k candidates kept before sampling")
	topP        = flag.Float64("top-p", 0.95, "cumulative probability mass kept before sampling")
	temp        = flag.Float64("temp", 0.8, "sampling temperature (<=0 selects argmax)")
	repeatPen   = flag.Float64("repeat-penalty", 1.1, "penalty applied to tokens already seen")
	embedAddr   = flag.String("embed-sink", "", "optional Arrow Flight address to stream embeddings to")
	metricsAddr = flag.String("metrics", ":9090", "address to serve Prometheus metrics on")
)

func main() {
	flag.Parse()
	logger.Setup("INFO", "console")

	if *modelPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -model flag is required")
		flag.Usage()
		os.Exit(1)
	}

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		log.Printf("metrics serving on %s/metrics", *metricsAddr)
		if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
			log.Printf("metrics server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	params := config.Default()
	params.NCtx = *nCtx
	params.Seed = *seed

	if *embedAddr != "" {
		sink, err := embedexport.Dial(context.Background(), *embedAddr)
		if err != nil {
			log.Fatalf("failed to dial embed sink %s: %v", *embedAddr, err)
		}
		defer sink.Close()
		params.Embedding = true
		params.EmbedSink = sink
	}

	log.Printf("loading model from %s...", *modelPath)
	sess, err := session.Init("cli", *modelPath, params)
	if err != nil {
		log.Fatalf("failed to initialize session: %v", err)
	}
	defer sess.Close()

	tokens := make([]int, len(*prompt)+1)
	n, err := sess.Tokenize(*prompt, tokens, true)
	if err != nil {
		log.Fatalf("failed to tokenize prompt: %v", err)
	}
	tokens = tokens[:n]
	log.Printf("encoded prompt %q -> %v", *prompt, tokens)

	sampleParams := sampler.Params{
		TopK:          *topK,
		TopP:          float32(*topP),
		Temp:          float32(*temp),
		RepeatPenalty: float32(*repeatPen),
	}

	doneChan := make(chan struct{})
	go func() {
		defer close(doneChan)
		start := time.Now()
		generated := make([]int, 0, *numTokens)

		if err := sess.Eval(tokens, 0); err != nil {
			log.Printf("eval error: %v", err)
			return
		}
		for i := 0; i < *numTokens; i++ {
			id := sess.Sample(append(tokens, generated...), sampleParams)
			generated = append(generated, id)
			fmt.Printf("%s", sess.TokenToStr(id))
			if err := sess.Eval([]int{id}, 0); err != nil {
				log.Printf("eval error: %v", err)
				return
			}
		}
		fmt.Println()

		duration := time.Since(start)
		tokensPerSec := float64(len(generated)) / duration.Seconds()
		log.Printf("generated %d tokens in %v (%.2f t/s)", len(generated), duration, tokensPerSec)
	}()

	select {
	case <-doneChan:
	case <-sigChan:
		log.Println("interrupt received, shutting down...")
	}
}
