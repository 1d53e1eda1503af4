package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coinrush/config"
	"coinrush/logger"
	"coinrush/models"
	"coinrush/services"
	"coinrush/store"

	"github.com/rs/zerolog/log"
)

const frameInterval = 50 * time.Millisecond

// racer is a headless participant: it plays rounds with simulated input and keeps
// its local phase in sync with the room like any other client.
func main() {
	create := flag.Bool("create", false, "create a room and host it")
	join := flag.String("join", "", "room code to join")
	name := flag.String("name", "", "display name")
	offline := flag.Bool("offline", false, "play a solo round without any server")
	rounds := flag.Int("rounds", 1, "rounds to play before exiting")
	startAfter := flag.Duration("start-after", 5*time.Second, "how long the host waits in the lobby")
	flag.Parse()

	cfg := config.Load()
	logger.Setup(cfg.LogLevel, cfg.LogPretty)

	displayName := *name
	if displayName == "" {
		displayName = cfg.DisplayName
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, identity, cleanup, err := openStore(ctx, cfg, *offline, displayName)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open document store")
	}
	defer cleanup()
	if displayName == "" {
		displayName = identity.UID
	}

	progress, err := services.OpenProgressStore(cfg.ProgressDBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open progress store")
	}
	defer progress.Close()

	profileID, err := progress.ProfileID(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load local profile")
	}
	if prog, err := progress.Load(ctx, profileID); err == nil {
		log.Info().Str("uid", identity.UID).Str("profile", profileID).Int("level", prog.Level).Int("best", prog.BestScore).Int("xp", prog.XP).Msg("loaded progress")
	}

	rooms := services.NewRoomService(st, cfg.MaxPlayersPerRoom)
	syncer := services.NewSynchronizer(identity.UID, st, rooms, nil, services.SyncOptions{
		RoundDuration:       cfg.RoundDuration,
		HostGrace:           cfg.HostGrace,
		ScoreReportInterval: cfg.ScoreReportInterval,
		Progress:            progress,
		ProfileID:           profileID,
	})
	session := services.NewSession(cfg.RoundDuration, syncer)
	syncer.SetSession(session)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	syncDone := make(chan struct{})
	go func() {
		defer close(syncDone)
		syncer.Run(runCtx)
	}()

	_, local := st.(*store.MemoryStore)
	if local && *join != "" {
		log.Warn().Str("room", *join).Msg("multiplayer unavailable, hosting a solo room instead")
	}
	hosting := *create || *join == "" || local
	if hosting {
		code, err := syncer.CreateRoom(ctx, displayName)
		if err != nil {
			log.Fatal().Err(err).Msg("could not create room")
		}
		fmt.Printf("room code: %s\n", code)
	} else if err := syncer.JoinRoom(ctx, *join, displayName); err != nil {
		switch {
		case errors.Is(err, services.ErrRoomFull):
			log.Fatal().Str("room", *join).Msg("room is full")
		case errors.Is(err, services.ErrRoomNotFound):
			log.Fatal().Str("room", *join).Msg("room not found")
		case errors.Is(err, services.ErrRoomInProgress):
			log.Fatal().Str("room", *join).Msg("a round is in progress, try again later")
		default:
			log.Fatal().Err(err).Str("room", *join).Msg("could not join room")
		}
	}

	play(ctx, syncer, session, hosting, *rounds, *startAfter)

	cancel()
	<-syncDone

	if prog, err := progress.Load(context.Background(), profileID); err == nil {
		fmt.Printf("level %d, best score %d, %d games played\n", prog.Level, prog.BestScore, prog.GamesPlayed)
	}
}

// openStore picks the document store. Offline play and guests get an in-process
// store; the room still runs through the same synchronizer.
func openStore(ctx context.Context, cfg *config.Config, offline bool, displayName string) (store.DocumentStore, services.Identity, func(), error) {
	noop := func() {}
	if offline || cfg.DocStore == "memory" {
		return store.NewMemoryStore(), services.GuestIdentity(), noop, nil
	}

	switch cfg.DocStore {
	case "redis":
		client := config.InitRedis(cfg)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			log.Warn().Err(err).Msg("redis unreachable, playing offline")
			return store.NewMemoryStore(), services.GuestIdentity(), noop, nil
		}
		return store.NewRedisStore(client, cfg.RoomTTL), services.GuestIdentity(), func() { client.Close() }, nil

	case "gateway":
		remote := store.NewRemoteStore(cfg.GatewayURL)
		authCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		identity := services.AuthenticateOrGuest(authCtx, remote, displayName)
		if identity.Guest {
			return store.NewMemoryStore(), identity, noop, nil
		}
		return remote, identity, noop, nil
	}

	return nil, services.Identity{}, noop, fmt.Errorf("unknown document store %q", cfg.DocStore)
}

func play(ctx context.Context, syncer *services.Synchronizer, session *services.Session, hosting bool, rounds int, startAfter time.Duration) {
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	played := 0
	prev := syncer.Phase()
	phaseSince := time.Now()
	requested := false

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			phase := syncer.Phase()
			if phase != prev {
				if phase == models.PhaseGameOver {
					played++
					st := session.State(now)
					fmt.Printf("round %d over: score %d, lives %d\n", played, st.Score, st.Lives)
				}
				prev, phaseSince, requested = phase, now, false
			}

			switch phase {
			case models.PhaseMenu:
				if now.Sub(phaseSince) > 5*time.Second {
					log.Warn().Msg("dropped back to menu")
					return
				}
			case models.PhaseLobby:
				if hosting && !requested && now.Sub(phaseSince) >= startAfter {
					requested = true
					if err := syncer.StartMatch(ctx); err != nil {
						log.Warn().Err(err).Msg("could not start match")
					}
				}
			case models.PhasePlaying:
				// simulated input
				switch r := rng.Intn(100); {
				case r < 8:
					session.CollectCoin()
				case r == 99:
					session.Hit()
				}
			case models.PhaseGameOver:
				if played >= rounds {
					return
				}
				if hosting && !requested && now.Sub(phaseSince) >= 2*time.Second {
					requested = true
					if err := syncer.RestartLobby(ctx); err != nil {
						log.Warn().Err(err).Msg("could not restart lobby")
					}
				}
			}

			session.Step(now)
			syncer.Tick(now)
		}
	}
}
