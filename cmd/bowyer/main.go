package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"runtime/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	"github.com/23skdu/longbow-bowyer/internal/dataset"
	"github.com/23skdu/longbow-bowyer/internal/device"
	"github.com/23skdu/longbow-bowyer/internal/glm"
	"github.com/23skdu/longbow-bowyer/internal/model"
	"github.com/23skdu/longbow-bowyer/internal/solver"
)

var (
	dataPath   = flag.String("data", "", "Path to Arrow IPC dataset")
	labelCol   = flag.String("label", "label", "Name of the label column")
	familyName = flag.String("family", "logistic", "Model family (linear, logistic, softmax)")
	intercept  = flag.Bool("intercept", true, "Fit a per-class intercept")
	outPath    = flag.String("out", "model.cbor", "Path to write the trained model")
	maxIter    = flag.Int("maxiter", 100, "Maximum solver iterations")
	tol        = flag.Float64("tol", 1e-4, "Gradient infinity-norm convergence tolerance")
	memory     = flag.Int("memory", 10, "L-BFGS correction pairs to keep")
	listenAddr = flag.String("listen", "", "Address to serve Prometheus metrics on (e.g. :9090)")
	enableOTel = flag.Bool("otel", false, "Enable OpenTelemetry tracing (stdout)")
	cpuProfile = flag.String("cpuprofile", "", "Write cpu profile to file")
)

func main() {
	// Initialize logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()

	flag.Parse()

	if *dataPath == "" {
		log.Fatal().Msg("-data is required")
	}

	if *enableOTel {
		shutdown, err := initTracer()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize tracer")
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				log.Warn().Err(err).Msg("Tracer shutdown failed")
			}
		}()
	}

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create CPU profile file")
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal().Err(err).Msg("Could not start CPU profile")
		}
		defer pprof.StopCPUProfile()
	}

	if *listenAddr != "" {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			log.Info().Str("addr", *listenAddr).Msg("Serving Prometheus metrics")
			if err := http.ListenAndServe(*listenAddr, nil); err != nil {
				log.Error().Err(err).Msg("Metrics listener failed")
			}
		}()
	}

	frame, err := dataset.ReadFile(*dataPath, *labelCol)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load dataset")
	}

	if err := train(frame); err != nil {
		log.Fatal().Err(err).Msg("Training failed")
	}
}

func train(frame *dataset.Frame) error {
	family := model.Family(*familyName)
	classes := 1
	if family == model.FamilySoftmax {
		classes = numClasses(frame.Y)
	}
	dims := glm.NewDims(classes, frame.NumFeatures, *intercept)

	stream := device.NewStream()
	defer stream.Close()

	x := device.ViewOf(frame.X, frame.NumRows, frame.NumFeatures, device.RowMajor)
	y := device.VectorOf(frame.Y, frame.NumRows)

	var obj *glm.Objective
	switch family {
	case model.FamilyLinear:
		obj = glm.NewObjective(dims, glm.Squared{})
	case model.FamilyLogistic:
		obj = glm.NewObjective(dims, glm.Logistic{})
	case model.FamilySoftmax:
		obj = glm.NewObjective(dims, glm.Softmax{Classes: classes})
	default:
		log.Fatal().Str("family", *familyName).Msg("Unknown model family")
	}
	bound := glm.Bind(obj, stream, x, y)

	lbfgs, err := solver.New(solver.Config{
		Memory:  *memory,
		MaxIter: *maxIter,
		Tol:     float32(*tol),
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("family", string(family)).
		Int("classes", classes).
		Int("features", frame.NumFeatures).
		Int("samples", frame.NumRows).
		Int("params", dims.NParam()).
		Msg("Starting fit")

	weights := make([]float32, dims.NParam())
	start := time.Now()
	res, err := lbfgs.Minimize(context.Background(), bound.Eval, weights)
	if err != nil {
		return err
	}
	log.Info().
		Float32("loss", res.Loss).
		Float32("gnorm", res.GradNorm).
		Int("iters", res.Iters).
		Int("evals", res.Evals).
		Bool("converged", res.Converged).
		Dur("elapsed", time.Since(start)).
		Msg("Fit finished")

	artifact, err := model.New(family, dims, weights)
	if err != nil {
		return err
	}
	return artifact.Save(*outPath)
}

// numClasses derives the class count from integer-valued labels.
func numClasses(y []float32) int {
	max := 0
	for _, v := range y {
		if c := int(v); c > max {
			max = c
		}
	}
	return max + 1
}

func initTracer() (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String("bowyer"),
		)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp.Shutdown, nil
}
