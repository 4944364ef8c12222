// meetsolisctl is the maintenance companion to the client agent: it
// inspects call tokens and manages the local state database without
// starting a session.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"meetsolis-client/internal/auth"
	"meetsolis-client/internal/store"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: meetsolisctl <command> [flags]

Commands:
  token inspect <jwt>     decode a call token
  token mint              mint a development token (-key -secret -room -identity)
  prefs show              print the saved device preferences
  prefs reset             clear the saved device preferences
  layout show             print the persisted layout configuration
`)
	os.Exit(2)
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if len(os.Args) < 3 {
		usage()
	}

	switch os.Args[1] + " " + os.Args[2] {
	case "token inspect":
		tokenInspect(os.Args[3:])
	case "token mint":
		tokenMint(os.Args[3:])
	case "prefs show":
		prefsShow(os.Args[3:])
	case "prefs reset":
		prefsReset(os.Args[3:])
	case "layout show":
		layoutShow(os.Args[3:])
	default:
		usage()
	}
}

func tokenInspect(args []string) {
	if len(args) != 1 {
		usage()
	}
	claims, err := auth.ParseCallToken(args[0])
	if err != nil {
		log.Fatal().Err(err).Msg("Token rejected")
	}
	printJSON(map[string]any{
		"identity": claims.Identity(),
		"name":     claims.Name,
		"room":     claims.Video.Room,
		"roomJoin": claims.Video.RoomJoin,
		"issuer":   claims.Issuer,
		"expires":  claims.ExpiresAt,
	})
}

func tokenMint(args []string) {
	fs := flag.NewFlagSet("token mint", flag.ExitOnError)
	key := fs.String("key", "devkey", "API key")
	secret := fs.String("secret", "secret", "API secret")
	room := fs.String("room", "", "room name")
	identity := fs.String("identity", "", "participant identity")
	name := fs.String("name", "", "display name")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	_ = fs.Parse(args)

	if *room == "" || *identity == "" {
		log.Fatal().Msg("-room and -identity are required")
	}
	token, err := auth.GenerateDevToken(*key, *secret, *room, *identity, *name, *ttl)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to mint token")
	}
	fmt.Println(token)
}

func openStore(args []string) *store.Store {
	fs := flag.NewFlagSet("store", flag.ExitOnError)
	path := fs.String("db", "meetsolis-state.db", "state database path")
	_ = fs.Parse(args)

	db, err := store.Open(*path)
	if err != nil {
		log.Fatal().Err(err).Str("path", *path).Msg("Failed to open state database")
	}
	return db
}

func prefsShow(args []string) {
	db := openStore(args)
	defer db.Close()

	prefs, err := db.LoadPreferences()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load preferences")
	}
	if prefs == nil {
		fmt.Println("no saved preferences")
		return
	}
	printJSON(prefs)
}

func prefsReset(args []string) {
	db := openStore(args)
	defer db.Close()

	if err := db.ResetPreferences(); err != nil {
		log.Fatal().Err(err).Msg("Failed to reset preferences")
	}
	fmt.Println("preferences cleared")
}

func layoutShow(args []string) {
	db := openStore(args)
	defer db.Close()

	cfg, err := db.LoadLayout()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load layout state")
	}
	if cfg == nil {
		fmt.Println("no saved layout")
		return
	}
	printJSON(cfg)
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to encode output")
	}
	fmt.Println(string(data))
}
