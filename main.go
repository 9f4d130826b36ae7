package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OnePlanDan/screamscriber/audio"
	"github.com/OnePlanDan/screamscriber/config"
	"github.com/OnePlanDan/screamscriber/dispatch"
	"github.com/OnePlanDan/screamscriber/encoder"
	"github.com/OnePlanDan/screamscriber/hook"
	"github.com/OnePlanDan/screamscriber/inject"
	"github.com/OnePlanDan/screamscriber/log"
	"github.com/OnePlanDan/screamscriber/server"
	"github.com/OnePlanDan/screamscriber/session"
	"github.com/OnePlanDan/screamscriber/shutdown"
)

var version = "dev"

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func run() {
	cfg, err := config.Load()
	if err != nil {
		fatal("%v", err)
	}

	hotkeyFlag := flag.String("hotkey", cfg.Hotkey, "Chord that starts recording (e.g. ctrl+shift+space, ctrl+mouse2)")
	modeFlag := flag.String("mode", cfg.Mode, "Recording mode: push-to-talk or continuous")
	backendFlag := flag.String("backend", cfg.Backend, "Transcription backend: local or remote")
	whisperFlag := flag.String("whisper", cfg.WhisperBinary, "Path to whisper CLI binary (local backend)")
	modelFlag := flag.String("model", cfg.WhisperModel, "Path to whisper model file (local backend)")
	remoteFlag := flag.String("remote", cfg.RemoteURL, "Remote transcription endpoint URL (remote backend)")
	serveFlag := flag.String("serve", cfg.ServeAddr, "Also serve the transcription API on this address (e.g. :8760)")
	deviceFlag := flag.String("device", "", "Use named microphone device")
	setupFlag := flag.Bool("setup", false, "Select microphone device interactively")
	langFlag := flag.String("lang", cfg.Language, "Language code hint (e.g. en, es). Empty = auto-detect")
	formatFlag := flag.String("format", cfg.RemoteFormat, "Upload format: flac or wav")
	pasteFlag := flag.Bool("paste", cfg.Paste, "Paste transcribed text at the cursor (off = clipboard only)")
	logPathFlag := flag.String("logpath", cfg.LogPath, "Log directory path (default: OS-specific location)")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	diagnoseFlag := flag.Bool("diagnose", false, "Print input hook diagnostics and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("screamscriber %s\n", version)
		os.Exit(0)
	}
	if *diagnoseFlag {
		report, err := hook.Diagnose()
		if err != nil {
			fatal("%v", err)
		}
		fmt.Println(report)
		os.Exit(0)
	}

	cfg.Hotkey = *hotkeyFlag
	cfg.Mode = *modeFlag
	cfg.Backend = *backendFlag
	cfg.WhisperBinary = *whisperFlag
	cfg.WhisperModel = *modelFlag
	cfg.RemoteURL = *remoteFlag
	cfg.ServeAddr = *serveFlag
	cfg.Language = *langFlag
	cfg.RemoteFormat = *formatFlag
	cfg.Paste = *pasteFlag
	if err := cfg.Validate(); err != nil {
		fatal("%v", err)
	}

	logPath, err := log.ResolveDir(*logPathFlag)
	if err != nil {
		fatal("failed to resolve log directory: %v", err)
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}

	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	if crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644); err == nil {
		fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
		debug.SetCrashOutput(crashFile, debug.CrashOptions{})
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()
	log.SessionStart(cfg.Backend, cfg.Mode, cfg.RemoteFormat)

	combo, _ := hook.ParseCombo(cfg.Hotkey) // validated above

	actx, err := audio.NewContext()
	if err != nil {
		fatal("initializing audio: %v", err)
	}
	defer actx.Close()

	var device *audio.DeviceInfo
	switch {
	case *setupFlag && *deviceFlag == "":
		device, err = audio.SelectDevice(actx)
		if err != nil {
			fatal("selecting device: %v", err)
		}
	case *deviceFlag != "":
		devices, err := actx.Devices()
		if err != nil {
			fatal("enumerating devices: %v", err)
		}
		for i := range devices {
			if devices[i].Name == *deviceFlag {
				device = &devices[i]
				break
			}
		}
		if device == nil {
			fatal("device %q not found", *deviceFlag)
		}
	}

	capture, err := actx.NewCapture(device, audio.CaptureConfig{
		SampleRate: encoder.SampleRate,
		Channels:   encoder.Channels,
	})
	if err != nil {
		fatal("opening capture device: %v", err)
	}
	defer capture.Close()

	backend, err := buildBackend(cfg)
	if err != nil {
		fatal("%v", err)
	}

	injector := inject.New(true)
	var transcribed atomic.Int64
	disp := dispatch.New(backend, dispatch.Config{
		Workers: cfg.Workers,
		Timeout: cfg.RemoteTimeout,
	}, func(res dispatch.Result) {
		printResult(res)
		if res.Failed() {
			return
		}
		transcribed.Add(1)
		if cfg.Paste {
			if err := injector.Inject(res.Text); err != nil {
				log.Warnf("inject: %v", err)
			}
		} else if err := injector.Copy(res.Text); err != nil {
			log.Warnf("clipboard copy: %v", err)
		}
	})
	defer disp.Close()

	var srv *server.Server
	if cfg.ServeAddr != "" {
		srv = server.New(server.Config{Addr: cfg.ServeAddr, Model: cfg.RemoteModel}, disp)
		if err := srv.Start(); err != nil {
			fatal("%v", err)
		}
	}

	factory, err := hook.NewPlatformFactory(combo)
	if err != nil {
		fatal("%v", err)
	}
	mgr := hook.NewManager(factory)
	if err := mgr.Arm(); err != nil {
		if errors.Is(err, hook.ErrResourceExhausted) {
			fatal("the OS refused an input listener (no free handles); close other hook clients and retry")
		}
		fatal("arming input hooks: %v", err)
	}
	defer mgr.Disarm()

	sess, err := session.New(session.Config{
		Mode:       session.Mode(cfg.Mode),
		MaxSegment: cfg.MaxSegment,
	}, capture, mgr, disp, session.Callbacks{
		OnStateChange:     printState,
		OnSegmentTooShort: func() { printNotice("segment too short, ignored") },
		OnSilenceWarning: func(active bool) {
			if active {
				printNotice("no voice detected")
			}
		},
		OnCaptureError: printError,
	})
	if err != nil {
		fatal("%v", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	shutdown.Notify(sigChan)
	var shutdownOnce sync.Once
	go func() {
		<-sigChan
		shutdownOnce.Do(func() {
			printNotice("shutting down")
			cancel()
		})
	}()

	printBanner(cfg, capture.DeviceName(), combo)
	sess.Run(runCtx)

	if srv != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
		srv.Stop(stopCtx)
		stopCancel()
	}
	log.SessionEnd(int(transcribed.Load()))
}

func buildBackend(cfg *config.Config) (dispatch.Backend, error) {
	switch cfg.Backend {
	case "remote":
		r := dispatch.NewRemote(dispatch.RemoteConfig{
			URL:      cfg.RemoteURL,
			APIKey:   cfg.RemoteAPIKey,
			Model:    cfg.RemoteModel,
			Language: cfg.Language,
			Format:   cfg.RemoteFormat,
			MaxHops:  cfg.MaxChainHops,
			Timeout:  cfg.RemoteTimeout,
		})
		r.Warm()
		return r, nil
	default:
		model, err := dispatch.NewWhisperModel(dispatch.WhisperConfig{
			Binary:    cfg.WhisperBinary,
			ModelPath: cfg.WhisperModel,
			Language:  cfg.Language,
		})
		if err != nil {
			return nil, err
		}
		return dispatch.NewLocal(model), nil
	}
}
