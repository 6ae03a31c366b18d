package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/sara-star-quant/sevenlayer/internal/constants"
	"github.com/sara-star-quant/sevenlayer/pkg/engine"
	"github.com/sara-star-quant/sevenlayer/pkg/envelope"
	"github.com/sara-star-quant/sevenlayer/pkg/metrics"
)

func encryptCommand(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := newFlagSet("encrypt", "Encrypt a message through all seven layers.", stderr)
	var obs obsFlags
	var keys keyFlags
	obs.register(fs)
	keys.register(fs)
	profile := fs.String("profile", constants.ProfileBalanced, "Security profile: MAXIMUM, BALANCED or PERFORMANCE")
	in := fs.String("in", "-", "Input file (- for stdin)")
	out := fs.String("out", "-", "Output file (- for stdout)")
	asEnvelope := fs.Bool("envelope", false, "Write a JSON envelope instead of a raw packet")
	compress := fs.Bool("compress", false, "LZ4-compress the message before encryption (requires -envelope)")

	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *compress && !*asEnvelope {
		return fmt.Errorf("-compress requires -envelope")
	}

	logger, tracer, err := obs.setup(stderr)
	if err != nil {
		return err
	}
	defer logSpans(logger, tracer)

	key, err := keys.resolve()
	if err != nil {
		return err
	}
	plaintext, err := readInput(*in, stdin)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	eng, err := engine.New(*profile, engineOptions(logger, tracer)...)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if !*asEnvelope {
		packet, err := eng.Encrypt(ctx, plaintext, key, nil)
		if err != nil {
			return err
		}
		return writeOutput(*out, stdout, packet)
	}

	var opts []envelope.Option
	if *compress {
		opts = append(opts, envelope.WithCompression(envelope.CompressionDefault))
	}
	doc, err := envelope.Seal(ctx, eng, plaintext, key, opts...)
	if err != nil {
		return err
	}
	data, err := doc.Marshal()
	if err != nil {
		return err
	}
	logger.Info("envelope sealed", metrics.Fields{
		"id":          doc.ID,
		"profile":     doc.Profile,
		"compressed":  doc.Compressed,
		"fingerprint": doc.KeyFingerprint,
	})
	return writeOutput(*out, stdout, append(data, '\n'))
}

func decryptCommand(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := newFlagSet("decrypt", "Decrypt a packet or envelope. The profile is read from the packet.", stderr)
	var obs obsFlags
	var keys keyFlags
	obs.register(fs)
	keys.register(fs)
	in := fs.String("in", "-", "Input file (- for stdin)")
	out := fs.String("out", "-", "Output file (- for stdout)")
	asEnvelope := fs.Bool("envelope", false, "Input is a JSON envelope")
	enforceTTL := fs.Bool("ttl", false, "Reject packets older than their profile's token TTL")

	if err := parseFlags(fs, args); err != nil {
		return err
	}

	logger, tracer, err := obs.setup(stderr)
	if err != nil {
		return err
	}
	defer logSpans(logger, tracer)

	key, err := keys.resolve()
	if err != nil {
		return err
	}
	data, err := readInput(*in, stdin)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	opts := append(engineOptions(logger, tracer), engine.WithTokenTTL(*enforceTTL))
	eng, err := engine.New(constants.ProfileBalanced, opts...)
	if err != nil {
		return err
	}

	ctx := context.Background()
	var plaintext []byte
	if *asEnvelope {
		doc, err := envelope.Parse(data)
		if err != nil {
			return err
		}
		plaintext, err = envelope.Open(ctx, eng, doc, key)
		if err != nil {
			return err
		}
	} else {
		plaintext, err = eng.Decrypt(ctx, data, key)
		if err != nil {
			return err
		}
	}
	return writeOutput(*out, stdout, plaintext)
}

// infoOutput is the -json form of the info command.
type infoOutput struct {
	*engine.PackageInfo
	AgeHours float64            `json:"age_hours"`
	Envelope *envelope.Document `json:"envelope,omitempty"`
}

func infoCommand(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := newFlagSet("info", "Show packet metadata. Nothing is decrypted or authenticated.", stderr)
	in := fs.String("in", "-", "Input file (- for stdin)")
	asEnvelope := fs.Bool("envelope", false, "Input is a JSON envelope")
	asJSON := fs.Bool("json", false, "Print JSON")

	if err := parseFlags(fs, args); err != nil {
		return err
	}

	data, err := readInput(*in, stdin)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	packet := data
	var doc *envelope.Document
	if *asEnvelope {
		if doc, err = envelope.Parse(data); err != nil {
			return err
		}
		if packet, err = doc.Packet(); err != nil {
			return err
		}
	}

	eng, err := engine.New(constants.ProfileBalanced, engine.WithLogger(metrics.NullLogger()))
	if err != nil {
		return err
	}
	info, err := eng.Info(packet)
	if err != nil {
		return err
	}

	if *asJSON {
		if doc != nil {
			// The payload is already described by the packet fields.
			trimmed := *doc
			trimmed.Payload = ""
			doc = &trimmed
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(infoOutput{PackageInfo: info, AgeHours: info.AgeHours(), Envelope: doc})
	}

	if doc != nil {
		fmt.Fprintf(stdout, "Envelope:        %s (%s)\n", doc.ID, doc.Version)
		fmt.Fprintf(stdout, "Key fingerprint: %s\n", doc.KeyFingerprint)
		fmt.Fprintf(stdout, "Original size:   %d bytes (compressed: %v)\n", doc.OriginalSize, doc.Compressed)
	}
	fmt.Fprintf(stdout, "Version:         %s\n", info.Version)
	fmt.Fprintf(stdout, "Profile:         %s (%s)\n", info.Profile, info.ProfileDescription)
	fmt.Fprintf(stdout, "Created:         %s (%.2f hours ago)\n", info.Timestamp.UTC().Format("2006-01-02 15:04:05 MST"), info.AgeHours())
	fmt.Fprintf(stdout, "Nonce:           %s\n", info.Nonce)
	fmt.Fprintf(stdout, "Header size:     %d bytes\n", info.HeaderSize)
	fmt.Fprintf(stdout, "Encrypted size:  %d bytes\n", info.EncryptedSize)
	fmt.Fprintf(stdout, "Total size:      %d bytes\n", info.TotalSize)
	return nil
}
