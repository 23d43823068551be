package main

import (
	"context"
	"database/sql"
	"log"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	_ "modernc.org/sqlite"

	"github.com/ryanp54/forecastcheck/internal/api"
	"github.com/ryanp54/forecastcheck/internal/ingest"
	"github.com/ryanp54/forecastcheck/internal/store"
)

var cli struct {
	DB        string `name:"db" env:"FORECASTCHECK_DB" default:"data/forecastcheck.db" help:"Path to SQLite database."`
	Port      string `env:"PORT" default:"8080" help:"HTTP server port."`
	Gridpoint string `env:"NWS_GRIDPOINT" default:"OAX/76,56" help:"NWS forecast gridpoint (office/x,y)."`
	Station   string `env:"NWS_STATION" default:"KMLE" help:"NWS observation station ID."`
	Contact   string `env:"NWS_CONTACT" default:"site:weather2019.appspot.com; contact-email:ryanp54@yahoo.com" help:"User-Agent contact string the NWS API requires."`
	Once      bool   `help:"Record forecast and observations once, then exit."`
	NoPoll    bool   `help:"Disable the scheduler (server only, for local dev)."`
}

func main() {
	kong.Parse(&cli,
		kong.Name("forecastcheck"),
		kong.Description("Records NWS hourly forecasts and observations and scores forecast accuracy."),
		kong.Configuration(kongdotenv.ENVFileReader, ".env"),
	)

	db, err := sql.Open("sqlite", cli.DB)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	st := store.New(db)
	if err := st.Migrate(); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	log.Println("database migrated")

	client := ingest.NewClient(cli.Contact)
	metar := ingest.NewMETARClient(cli.Station)
	scheduler := ingest.NewScheduler(st, client, metar, cli.Gridpoint, cli.Station)
	server := api.NewServer(st, scheduler, cli.Port)

	if cli.Once {
		log.Println("running single record pass")
		if _, err := scheduler.RecordForecast(); err != nil {
			log.Fatalf("record forecast: %v", err)
		}
		if _, err := scheduler.RecordObservations(); err != nil {
			log.Printf("record observations: %v", err)
		}
		log.Println("done")
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if !cli.NoPoll {
		go scheduler.Run(ctx)
	} else {
		log.Println("polling disabled (--no-poll)")
	}

	log.Printf("starting server on :%s", cli.Port)
	if err := server.Run(ctx); err != nil {
		log.Fatalf("server: %v", err)
	}
}
