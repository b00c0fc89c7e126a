// Copyright 2025 Certen Protocol
//
// Extraction Pipeline - dual-domain read with a bounded orientation search
// Extraction is a diagnosis; a bad image yields "nothing", never an error

package steg

import (
	"github.com/rs/zerolog"

	"github.com/certen/imagechain/pkg/chain"
	"github.com/certen/imagechain/pkg/dct"
	"github.com/certen/imagechain/pkg/imaging"
	"github.com/certen/imagechain/pkg/lsb"
)

// Diagnosis classifies an extraction outcome.
type Diagnosis string

const (
	// DiagnosisFull means the complete payload was recovered.
	DiagnosisFull Diagnosis = "full"

	// DiagnosisMetadataOnly means only the frequency-domain critical
	// metadata survived.
	DiagnosisMetadataOnly Diagnosis = "metadata-only"

	// DiagnosisNothing means neither layer yielded anything.
	DiagnosisNothing Diagnosis = "nothing"
)

// rotations is the closed orientation search set, in trial order,
// counter-clockwise degrees.
var rotations = [4]int{0, 90, 180, 270}

// Details is the outcome of a single-orientation extraction.
type Details struct {
	// Payload is the recovered payload, enriched with the critical
	// metadata when both layers decoded. Nil unless Recovered.
	Payload *chain.ChainedPayload

	// Recovered is true when the spatial layer yielded a full payload.
	Recovered bool

	// CorruptionDetected is true when replication groups inside the frame
	// disagreed (all corrected), or the frame parsed but its JSON did not.
	CorruptionDetected bool

	// ErrorRate is the fraction of disagreeing replication groups.
	ErrorRate float64

	// CriticalMetadata is the frequency-domain record, when present.
	CriticalMetadata *chain.CriticalMetadata

	// DCTExtracted is true when the frequency-domain layer decoded.
	DCTExtracted bool
}

// RotationResult is the outcome of the full orientation search.
type RotationResult struct {
	// Payload is set on DiagnosisFull.
	Payload *chain.ChainedPayload

	// Rotation is the counter-clockwise rotation, in degrees, at which
	// extraction succeeded.
	Rotation int

	// CriticalMetadata is set on DiagnosisFull (when available) and on
	// DiagnosisMetadataOnly.
	CriticalMetadata *chain.CriticalMetadata

	Diagnosis Diagnosis
}

// Extractor recovers chained payloads from candidate images.
type Extractor struct {
	dct    *dct.Codec
	logger zerolog.Logger
}

// NewExtractor creates an extractor.
func NewExtractor(logger zerolog.Logger) *Extractor {
	return &Extractor{
		dct:    dct.NewCodec(),
		logger: logger,
	}
}

// ExtractWithDetails runs both layers at the image's current orientation.
// The DCT read strictly precedes the LSB read.
func (x *Extractor) ExtractWithDetails(g *imaging.Grid) *Details {
	details := &Details{}

	if md := x.dct.Extract(g); md != nil {
		details.CriticalMetadata = md
		details.DCTExtracted = true
	}

	res := lsb.Extract(g)
	details.CorruptionDetected = res.CorruptionDetected
	details.ErrorRate = res.ErrorRate
	if !res.Recovered {
		return details
	}

	payload, err := chain.FromJSON(res.Payload)
	if err != nil {
		// The frame survived but its contents did not; treat as corruption.
		details.CorruptionDetected = true
		return details
	}

	payload.DctMetadata = details.CriticalMetadata
	details.Payload = payload
	details.Recovered = true
	return details
}

// ExtractWithRotations tries each orientation in the closed set
// {0, 90, 180, 270} until the spatial layer yields a full payload. When no
// orientation does, the earliest orientation that yielded critical metadata
// decides a metadata-only diagnosis.
func (x *Extractor) ExtractWithRotations(g *imaging.Grid) *RotationResult {
	var firstMD *chain.CriticalMetadata
	firstMDRotation := 0

	for _, deg := range rotations {
		candidate, err := g.Rotate(deg)
		if err != nil {
			continue
		}

		details := x.ExtractWithDetails(candidate)
		if details.Recovered {
			x.logger.Debug().
				Int("rotation", deg).
				Float64("error_rate", details.ErrorRate).
				Msg("payload recovered")
			return &RotationResult{
				Payload:          details.Payload,
				Rotation:         deg,
				CriticalMetadata: details.CriticalMetadata,
				Diagnosis:        DiagnosisFull,
			}
		}
		if details.DCTExtracted && firstMD == nil {
			firstMD = details.CriticalMetadata
			firstMDRotation = deg
		}
	}

	if firstMD != nil {
		x.logger.Debug().
			Int("rotation", firstMDRotation).
			Str("chain_id", firstMD.ChainID).
			Msg("critical metadata only")
		return &RotationResult{
			Rotation:         firstMDRotation,
			CriticalMetadata: firstMD,
			Diagnosis:        DiagnosisMetadataOnly,
		}
	}
	return &RotationResult{Diagnosis: DiagnosisNothing}
}

// Detect implements chain.PayloadDetector: a full payload at any supported
// orientation is adopted on ingest.
func (x *Extractor) Detect(g *imaging.Grid) *chain.ChainedPayload {
	result := x.ExtractWithRotations(g)
	if result.Diagnosis != DiagnosisFull {
		return nil
	}
	return result.Payload
}
