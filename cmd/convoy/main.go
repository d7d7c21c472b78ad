package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/dkeye/convoy/internal/adapters/ws"
	"github.com/dkeye/convoy/internal/config"
	"github.com/dkeye/convoy/internal/domain"
	"github.com/dkeye/convoy/internal/geo"
	"github.com/dkeye/convoy/internal/session"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
		os.Exit(1)
	}

	pflag.String("server", cfg.ServerAddr, "coordination server address")
	name := pflag.StringP("name", "n", "", "display name (random when empty)")
	join := pflag.StringP("join", "j", "", "room id to join; empty creates a room")
	start := pflag.String("from", "52.5200,13.4050", "start position lat,lng")
	dest := pflag.String("to", "52.5163,13.3777", "destination lat,lng")
	interval := pflag.Duration("interval", cfg.PublishInterval, "location publish interval")
	verbose := pflag.BoolP("verbose", "v", false, "debug logging")
	pflag.Parse()
	_ = viper.BindPFlag("server_addr", pflag.Lookup("server"))

	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if *name == "" {
		*name = "guest-" + uuid.NewString()[:8]
	}

	from, err := parseCoordinate(*start)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad --from:", err)
		os.Exit(1)
	}
	to, err := parseCoordinate(*dest)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad --to:", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	transport := ws.New(cfg.ConnectTimeout)
	router := session.NewRouter()
	transport.OnFrame(router.Dispatch)
	walker := geo.NewRandomWalk(from, 0.0005, time.Now().UnixNano())
	sess := session.New(transport, router, walker, session.Options{
		RequestTimeout:  cfg.RequestTimeout,
		PublishInterval: *interval,
		DetailsCacheTTL: cfg.DetailsCacheTTL,
	})
	defer sess.Close()

	sess.OnJoined(func(roomID domain.RoomID, userID domain.UserID) {
		color.Green("joined room %s as %s", roomID, userID)
		color.Yellow("share this room id: %s", roomID)
	})
	sess.OnError(func(err error) {
		color.Red("server error: %v", err)
		cancel()
	})
	sess.OnRoomUpdate(func(room *domain.Room) {
		printRoom(room)
	})

	addr := viper.GetString("server_addr")
	if addr == "" {
		addr = cfg.ServerAddr
	}
	if err := transport.Connect(ctx, addr); err != nil {
		fmt.Fprintln(os.Stderr, "connect:", err)
		os.Exit(1)
	}

	if *join != "" {
		err = sess.JoinRoom(domain.RoomID(*join), *name, from)
	} else {
		err = sess.CreateRoom(*name, from, to, "")
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "request failed:", err)
		os.Exit(1)
	}

	<-ctx.Done()
	sess.LeaveRoom()
}

func parseCoordinate(s string) (domain.Coordinate, error) {
	parts := strings.SplitN(s, ",", 2)
	if len(parts) != 2 {
		return domain.Coordinate{}, fmt.Errorf("want lat,lng, got %q", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return domain.Coordinate{}, err
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return domain.Coordinate{}, err
	}
	return domain.Coordinate{Latitude: lat, Longitude: lng}, nil
}

func printRoom(room *domain.Room) {
	if room == nil {
		return
	}
	ids := make([]string, 0, len(room.Users))
	for id := range room.Users {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)
	color.Cyan("room %s, %d member(s)", room.ID, len(ids))
	for _, id := range ids {
		u := room.Users[domain.UserID(id)]
		line := fmt.Sprintf("  %-20s", u.Name)
		if u.Location != nil {
			line += fmt.Sprintf(" @ %.4f,%.4f", u.Location.Latitude, u.Location.Longitude)
		}
		if u.Route != nil {
			line += fmt.Sprintf(" (%s, %s by %s)", u.Route.Duration, u.Route.Distance, u.Route.Mode)
		}
		fmt.Println(line)
	}
}
