package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"MatrixConnectionRelay/internal/logging"
	"MatrixConnectionRelay/internal/query"
)

// ask sends one question through the relay, like the form page does, and
// prints whatever the page would display.
//
//	ask -endpoint http://localhost:8080/ "Is this the real world?"
//	echo "Is this the real world?" | ask
func main() {
	endpoint := flag.String("endpoint", "http://localhost:8080/", "relay endpoint")
	token := flag.String("token", os.Getenv("RELAY_TOKEN"), "bearer token, when the relay requires one")
	timeout := flag.Duration("timeout", 2*time.Minute, "request timeout")
	flag.Parse()

	log := logging.NewWithWriter(os.Stderr, "warn")

	question := strings.Join(flag.Args(), " ")
	if flag.NArg() == 0 {
		in, err := readStdin()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to read question")
		}
		question = in
	}

	client, err := query.NewClient(*endpoint, query.WithBearerToken(*token))
	if err != nil {
		log.Fatal().Err(err).Msg("invalid endpoint")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	reply, err := client.Ask(ctx, question)
	switch {
	case errors.Is(err, query.ErrEmptyInput):
		fmt.Println(query.EmptyInputMessage)
		return
	case err != nil:
		// The page leaves the result area alone in this case.
		log.Error().Err(err).Msg("relay request failed")
		os.Exit(1)
	}

	fmt.Println(reply.Display())
}

func readStdin() (string, error) {
	info, err := os.Stdin.Stat()
	if err != nil {
		return "", err
	}
	if info.Mode()&os.ModeCharDevice != 0 {
		return "", nil
	}

	var sb strings.Builder
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		sb.WriteString(sc.Text())
		sb.WriteByte('\n')
	}
	return sb.String(), sc.Err()
}
