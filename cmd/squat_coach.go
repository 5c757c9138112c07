package main

import (
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/rivo/tview"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
	"tinygo.org/x/bluetooth"

	"github.com/lowaak/squat-coach/internal/bt"
	"github.com/lowaak/squat-coach/internal/camera"
	"github.com/lowaak/squat-coach/internal/coach"
	"github.com/lowaak/squat-coach/internal/detect"
)

// chanWriter tees log output into a channel for the in-app log view.
// Writes never block; lines are dropped when the UI falls behind.
type chanWriter struct {
	ch chan<- string
}

func (w *chanWriter) Write(p []byte) (int, error) {
	line := string(p)
	select {
	case w.ch <- line:
	default:
	}
	return len(p), nil
}

func defaultLogPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "squat-coach.log"
	}
	return filepath.Join(home, ".squat-coach", "squat-coach.log")
}

func setupFlags() {
	pflag.String("config", "", "Path to config file (default ~/.squat-coach/config.yaml)")
	pflag.String("log-file", defaultLogPath(), "Path to the rotating log file")
	pflag.Duration("detect-interval", 3*time.Second, "Interval between squat detection checks")
	pflag.Duration("squat-hold", 1*time.Second, "How long the in-squat indicator stays lit after a rep")
	pflag.Float64("rep-probability", 0.3, "Chance a detection check reports a repetition (0.0-1.0)")
	pflag.Float64("good-probability", 0.75, "Chance a detected rep has good form (0.0-1.0)")
	pflag.Int64("seed", 0, "Random seed for the detection oracle (0 = time-based)")
	pflag.Bool("mock-hrm", false, "Use a simulated heart rate monitor instead of real Bluetooth")
	pflag.Bool("no-camera", false, "Simulate a missing camera")
	pflag.Duration("scan-timeout", 10*time.Second, "How long scanned devices stay listed after last being seen")
	pflag.Parse()

	must("bind flags", viper.BindPFlags(pflag.CommandLine))

	viper.SetEnvPrefix("SQUAT_COACH")
	viper.AutomaticEnv()

	if configPath := viper.GetString("config"); configPath != "" {
		viper.SetConfigFile(configPath)
		must("read config file", viper.ReadInConfig())
	} else if home, err := os.UserHomeDir(); err == nil {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(filepath.Join(home, ".squat-coach"))
		// The default config file is optional
		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				must("read config file", err)
			}
		}
	}
}

func main() {
	setupFlags()

	// Logs rotate on disk and tee into the in-app log view. Nothing is
	// written to the terminal while the curses UI owns it.
	uiLogChan := make(chan string, 256)
	fileWriter := &lumberjack.Logger{
		Filename:   viper.GetString("log-file"),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     14, // days
	}
	logger := log.New(io.MultiWriter(fileWriter, &chanWriter{ch: uiLogChan}), "", log.LstdFlags)
	logger.Println("squat-coach starting")

	seed := viper.GetInt64("seed")
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	logger.Printf("Detection oracle seed: %d", seed)
	rng := rand.New(rand.NewSource(seed))

	oracle := detect.NewRandomOracle(rng, detect.Config{
		RepProbability:  viper.GetFloat64("rep-probability"),
		GoodProbability: viper.GetFloat64("good-probability"),
	})

	camManager := camera.NewManager(&camera.SimulatedProvider{
		Unavailable: viper.GetBool("no-camera"),
		Logger:      logger,
	}, logger)
	if err := camManager.Acquire(); err != nil {
		// Not fatal: the session dashboard offers a retry
		logger.Printf("Camera not available at startup: %v", err)
	}

	var btManager bt.ManagerInterface
	if viper.GetBool("mock-hrm") {
		logger.Println("Using simulated heart rate monitor")
		// The mock derives its own generator: the oracle's rng belongs to
		// the session loop goroutine and must stay out of the pump's hands
		btManager = coach.NewMockManager(logger, seed+1)
	} else {
		btManager = bt.NewManager(bluetooth.DefaultAdapter, logger, viper.GetDuration("scan-timeout"))
	}
	if err := btManager.Enable(); err != nil {
		// Keep running: the session works without a heart rate monitor
		logger.Printf("Bluetooth unavailable: %v", err)
	}

	persistence := coach.NewModelPersistence(logger)
	model := coach.NewSessionModel(btManager, camManager, persistence, logger, uiLogChan)
	deviceHandler := coach.NewDeviceHandler(btManager, model, logger)

	sessionManager := coach.NewSessionManager(model, camManager, oracle, coach.SessionConfig{
		DetectInterval: viper.GetDuration("detect-interval"),
		SquatHold:      viper.GetDuration("squat-hold"),
	}, logger)

	controller := coach.NewUIController(model, deviceHandler, sessionManager, camManager, logger)

	app := tview.NewApplication()
	cursesView := coach.NewCursesUIView(logger, app, model)
	baseView := coach.NewBaseUIView(coach.NewBaseUIViewArg{
		UIViewImpl:   cursesView,
		Model:        model,
		UIController: controller,
		Logger:       logger,
	})

	// The app opens in device management mode, so start scanning right away
	controller.StartDeviceScan()

	runErr := baseView.Run()

	// The UI has exited; tear down in reverse dependency order
	baseView.Shutdown()
	controller.Shutdown()
	model.Shutdown()
	btManager.Shutdown()
	camManager.Shutdown()

	logger.Println("squat-coach exited")
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "UI error: %v\n", runErr)
		os.Exit(1)
	}
}

func must(action string, err error) {
	if err != nil {
		panic("failed to " + action + ": " + err.Error())
	}
}
