package checkpoints

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Protobuf field numbers. The messages are:
//
//	message Report {
//	  Metadata metadata = 1;
//	  int64 examples = 2;
//	  Summary global = 3;
//	  repeated Summary labels = 4;
//	  repeated CurvePoint curve = 5;
//	}
//	message Metadata {
//	  string version = 1; string framework = 2;
//	  google.protobuf.Timestamp created_at = 3;
//	  string model_path = 4; string test_file = 5;
//	  int32 k = 6; float threshold = 7;
//	  string description = 8; repeated string tags = 9;
//	  string run_id = 10;
//	}
//	message Summary {
//	  string label = 1; int64 gold = 2; int64 predicted = 3;
//	  int64 predicted_gold = 4;
//	  double precision = 5; double recall = 6; double f1 = 7;
//	}
//	message CurvePoint { double precision = 1; double recall = 2; }
const (
	reportMetadata protowire.Number = 1
	reportExamples protowire.Number = 2
	reportGlobal   protowire.Number = 3
	reportLabels   protowire.Number = 4
	reportCurve    protowire.Number = 5

	metaVersion     protowire.Number = 1
	metaFramework   protowire.Number = 2
	metaCreatedAt   protowire.Number = 3
	metaModelPath   protowire.Number = 4
	metaTestFile    protowire.Number = 5
	metaK           protowire.Number = 6
	metaThreshold   protowire.Number = 7
	metaDescription protowire.Number = 8
	metaTags        protowire.Number = 9
	metaRunID       protowire.Number = 10

	summaryLabel         protowire.Number = 1
	summaryGold          protowire.Number = 2
	summaryPredicted     protowire.Number = 3
	summaryPredictedGold protowire.Number = 4
	summaryPrecision     protowire.Number = 5
	summaryRecall        protowire.Number = 6
	summaryF1            protowire.Number = 7

	pointPrecision protowire.Number = 1
	pointRecall    protowire.Number = 2
)

// MarshalProto encodes report in protobuf wire format
func MarshalProto(report *Report) ([]byte, error) {
	meta, err := appendMetadata(nil, &report.Metadata)
	if err != nil {
		return nil, err
	}

	var b []byte
	b = appendMessage(b, reportMetadata, meta)
	b = appendInt64(b, reportExamples, report.Examples)
	b = appendMessage(b, reportGlobal, appendSummary(nil, &report.Global))
	for i := range report.Labels {
		b = appendMessage(b, reportLabels, appendSummary(nil, &report.Labels[i]))
	}
	for _, p := range report.Curve {
		var pb []byte
		pb = appendDouble(pb, pointPrecision, float64(p.Precision))
		pb = appendDouble(pb, pointRecall, float64(p.Recall))
		b = appendMessage(b, reportCurve, pb)
	}
	return b, nil
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendInt64(b []byte, num protowire.Number, v int64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

// appendDouble always writes the field so NaN survives the trip
func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func appendMetadata(b []byte, m *CheckpointMetadata) ([]byte, error) {
	b = appendString(b, metaVersion, m.Version)
	b = appendString(b, metaFramework, m.Framework)
	if !m.CreatedAt.IsZero() {
		ts, err := proto.Marshal(timestamppb.New(m.CreatedAt))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal creation time: %w", err)
		}
		b = appendMessage(b, metaCreatedAt, ts)
	}
	b = appendString(b, metaModelPath, m.ModelPath)
	b = appendString(b, metaTestFile, m.TestFile)
	b = appendInt64(b, metaK, int64(m.K))
	b = protowire.AppendTag(b, metaThreshold, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, math.Float32bits(m.Threshold))
	b = appendString(b, metaDescription, m.Description)
	for _, tag := range m.Tags {
		b = protowire.AppendTag(b, metaTags, protowire.BytesType)
		b = protowire.AppendString(b, tag)
	}
	b = appendString(b, metaRunID, m.RunID)
	return b, nil
}

func appendSummary(b []byte, s *Summary) []byte {
	b = appendString(b, summaryLabel, s.Label)
	b = appendInt64(b, summaryGold, s.Gold)
	b = appendInt64(b, summaryPredicted, s.Predicted)
	b = appendInt64(b, summaryPredictedGold, s.PredictedGold)
	b = appendDouble(b, summaryPrecision, float64(s.Precision))
	b = appendDouble(b, summaryRecall, float64(s.Recall))
	return appendDouble(b, summaryF1, float64(s.F1))
}

// field is one decoded key/value pair
type field struct {
	num   protowire.Number
	typ   protowire.Type
	value uint64
	bytes []byte
}

// parseFields splits a message into its fields. Groups are skipped.
func parseFields(b []byte) ([]field, error) {
	var fields []field
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.value, n = protowire.ConsumeVarint(b)
		case protowire.Fixed32Type:
			var v uint32
			v, n = protowire.ConsumeFixed32(b)
			f.value = uint64(v)
		case protowire.Fixed64Type:
			f.value, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]
		fields = append(fields, f)
	}
	return fields, nil
}

// UnmarshalProto decodes a report written by MarshalProto. Unknown fields
// are ignored.
func UnmarshalProto(data []byte) (*Report, error) {
	fields, err := parseFields(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}

	report := &Report{Labels: []Summary{}, Curve: []CurvePoint{}}
	for _, f := range fields {
		switch {
		case f.num == reportMetadata && f.typ == protowire.BytesType:
			if err := decodeMetadata(f.bytes, &report.Metadata); err != nil {
				return nil, err
			}
		case f.num == reportExamples && f.typ == protowire.VarintType:
			report.Examples = int64(f.value)
		case f.num == reportGlobal && f.typ == protowire.BytesType:
			if err := decodeSummary(f.bytes, &report.Global); err != nil {
				return nil, err
			}
		case f.num == reportLabels && f.typ == protowire.BytesType:
			var s Summary
			if err := decodeSummary(f.bytes, &s); err != nil {
				return nil, err
			}
			report.Labels = append(report.Labels, s)
		case f.num == reportCurve && f.typ == protowire.BytesType:
			p, err := decodePoint(f.bytes)
			if err != nil {
				return nil, err
			}
			report.Curve = append(report.Curve, p)
		}
	}
	return report, nil
}

func decodeMetadata(b []byte, m *CheckpointMetadata) error {
	fields, err := parseFields(b)
	if err != nil {
		return fmt.Errorf("failed to decode report metadata: %w", err)
	}
	for _, f := range fields {
		switch {
		case f.num == metaVersion && f.typ == protowire.BytesType:
			m.Version = string(f.bytes)
		case f.num == metaFramework && f.typ == protowire.BytesType:
			m.Framework = string(f.bytes)
		case f.num == metaCreatedAt && f.typ == protowire.BytesType:
			var ts timestamppb.Timestamp
			if err := proto.Unmarshal(f.bytes, &ts); err != nil {
				return fmt.Errorf("failed to decode creation time: %w", err)
			}
			m.CreatedAt = ts.AsTime()
		case f.num == metaModelPath && f.typ == protowire.BytesType:
			m.ModelPath = string(f.bytes)
		case f.num == metaTestFile && f.typ == protowire.BytesType:
			m.TestFile = string(f.bytes)
		case f.num == metaK && f.typ == protowire.VarintType:
			m.K = int32(f.value)
		case f.num == metaThreshold && f.typ == protowire.Fixed32Type:
			m.Threshold = math.Float32frombits(uint32(f.value))
		case f.num == metaDescription && f.typ == protowire.BytesType:
			m.Description = string(f.bytes)
		case f.num == metaTags && f.typ == protowire.BytesType:
			m.Tags = append(m.Tags, string(f.bytes))
		case f.num == metaRunID && f.typ == protowire.BytesType:
			m.RunID = string(f.bytes)
		}
	}
	return nil
}

func decodeSummary(b []byte, s *Summary) error {
	fields, err := parseFields(b)
	if err != nil {
		return fmt.Errorf("failed to decode summary: %w", err)
	}
	for _, f := range fields {
		switch {
		case f.num == summaryLabel && f.typ == protowire.BytesType:
			s.Label = string(f.bytes)
		case f.num == summaryGold && f.typ == protowire.VarintType:
			s.Gold = int64(f.value)
		case f.num == summaryPredicted && f.typ == protowire.VarintType:
			s.Predicted = int64(f.value)
		case f.num == summaryPredictedGold && f.typ == protowire.VarintType:
			s.PredictedGold = int64(f.value)
		case f.num == summaryPrecision && f.typ == protowire.Fixed64Type:
			s.Precision = Ratio(math.Float64frombits(f.value))
		case f.num == summaryRecall && f.typ == protowire.Fixed64Type:
			s.Recall = Ratio(math.Float64frombits(f.value))
		case f.num == summaryF1 && f.typ == protowire.Fixed64Type:
			s.F1 = Ratio(math.Float64frombits(f.value))
		}
	}
	return nil
}

func decodePoint(b []byte) (CurvePoint, error) {
	var p CurvePoint
	fields, err := parseFields(b)
	if err != nil {
		return p, fmt.Errorf("failed to decode curve point: %w", err)
	}
	for _, f := range fields {
		if f.typ != protowire.Fixed64Type {
			continue
		}
		switch f.num {
		case pointPrecision:
			p.Precision = Ratio(math.Float64frombits(f.value))
		case pointRecall:
			p.Recall = Ratio(math.Float64frombits(f.value))
		}
	}
	return p, nil
}
