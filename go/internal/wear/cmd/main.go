package main

import (
	"bufio"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/scorelink/go/internal/score"
	"github.com/mcdev12/scorelink/go/internal/wear"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// aliases mirror the watch buttons
var aliases = map[string]score.Command{
	"a+": score.CommandIncA,
	"a-": score.CommandDecA,
	"b+": score.CommandIncB,
	"b-": score.CommandDecB,
	"r":  score.CommandReset,
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	natsURL := getEnv("NATS_URL", "nats://localhost:4222")
	subject := wear.SubjectForPath(getEnv("WEAR_SUBJECT_PREFIX", wear.DefaultSubjectPrefix), wear.ScoreUpdatePath)

	nc, err := nats.Connect(natsURL, nats.Name("scorelink-watch"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to NATS")
	}
	defer nc.Close()

	publisher := wear.NewPublisher(nc, subject, clockwork.NewRealClock())

	log.Info().Str("subject", subject).Msg("watch ready: a+ a- b+ b- r, or a full command token")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		cmd, ok := aliases[strings.ToLower(input)]
		if !ok {
			cmd, err = score.ParseCommand(strings.ToUpper(input))
			if err != nil {
				log.Warn().Err(err).Msg("unknown input")
				continue
			}
		}

		if err := publisher.Send(cmd); err != nil {
			log.Error().Err(err).Str("command", cmd.String()).Msg("failed to send")
			continue
		}
		log.Info().Str("command", cmd.String()).Msg("sent")
	}
	if err := scanner.Err(); err != nil {
		log.Error().Err(err).Msg("failed to read input")
	}
}
