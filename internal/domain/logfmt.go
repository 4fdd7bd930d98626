package domain

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FormatVersion tags the processed log format. A reader must reject versions
// it does not know rather than guess at field order.
const FormatVersion = "processedCOA-v1"

// Placeholder marks a header or row value that is unknown or unavailable.
// The header keeps its fixed shape across all records; fields are never
// omitted or left blank.
const Placeholder = "???"

const (
	logTimeLayout = "2006-01-02T15:04:05Z"
	columnsV1     = "timestamp_utc, cnt_5s, cnt_1min, latitude, longitude, altitude, simulation_total, simulation_neutron"
)

// EncodeProcessedLog renders a FlightRecord as the canonical textual log:
// an ordered "# key = value" header block followed by comma-delimited rows
// in the declared column order.
func EncodeProcessedLog(rec *FlightRecord) []byte {
	var b strings.Builder

	field := func(key, value string) {
		if value == "" {
			value = Placeholder
		}
		b.WriteString("# ")
		b.WriteString(key)
		b.WriteString(" = ")
		b.WriteString(value)
		b.WriteByte('\n')
	}
	gap := func() { b.WriteString("#\n") }

	field("format", FormatVersion)
	field("data_delimiter", "comma")
	gap()
	field("device_id", rec.Meta.DeviceID)
	field("detector_model", rec.Meta.DetectorModel)
	field("detector_native_quantity", nativeQuantity(rec.Meta.DeviceID))
	field("processing_pipeline", PipelineTag)
	gap()
	field("reference_id", "cari7a")
	field("reference_model", "CARI-7A")
	field("reference_quantity", "H*(10)_total")
	field("reference_alignment_method", "time_offset_max_r2")
	field("reference_time_offset_s", strconv.Itoa(rec.Alignment.OffsetSeconds))
	field("reference_scaling_beta", fmt.Sprintf("%.4e", rec.Alignment.ScalingBeta))
	field("reference_scaling_units", "uSv/h per CPM")
	field("reference_fit_r2", fmt.Sprintf("%.4f", rec.Alignment.FitR2))
	gap()
	field("simulation_model", "CARI-7A")
	field("simulation_version", "")
	field("simulation_total", "H*10_total")
	field("simulation_neutron", "H*10_neutron")
	field("simulation_unit", "uSv/h")
	gap()
	field("airport_code_type", "ICAO")
	field("origin", rec.Meta.OriginICAO)
	field("destination", rec.Meta.DestinationICAO)
	field("flight_number", rec.Meta.FlightNumber)
	field("takeoff_utc", rec.Meta.TakeoffUTC.UTC().Format(logTimeLayout))
	field("landing_utc", rec.Meta.LandingUTC.UTC().Format(logTimeLayout))
	gap()
	field("detector_timestamps", rec.Timestamps)
	gap()
	field("timestamp_format", "UTC_ISO8601")
	field("latitude_unit", "degrees")
	field("longitude_unit", "degrees")
	field("altitude_unit", "metres")
	gap()
	field("citizen_id", rec.Meta.CitizenID)
	gap()
	field("columns", columnsV1)

	for i := range rec.Rows {
		r := &rec.Rows[i]
		cnt1min := Placeholder
		if r.Count1min != nil {
			cnt1min = strconv.Itoa(*r.Count1min)
		}
		b.WriteString(strings.Join([]string{
			r.Timestamp.UTC().Format(logTimeLayout),
			strconv.Itoa(r.Count5s),
			cnt1min,
			fmt.Sprintf("%.5f", r.Lat),
			fmt.Sprintf("%.5f", r.Lon),
			fmt.Sprintf("%.0f", r.Alt),
			fmt.Sprintf("%.4e", r.DoseTotal),
			fmt.Sprintf("%.4e", r.DoseNeutron),
		}, ", "))
		b.WriteByte('\n')
	}

	return []byte(b.String())
}

// DecodeProcessedLog parses a processed log back into a FlightRecord.
// Unknown format versions are rejected.
func DecodeProcessedLog(data []byte) (*FlightRecord, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	header := make(map[string]string)
	var rows []Row
	sawColumns := false
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line == "#" {
			continue
		}

		if strings.HasPrefix(line, "# ") {
			key, value, err := parseHeaderLine(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNum, err)
			}
			if len(header) == 0 && key != "format" {
				return nil, fmt.Errorf("line %d: processed log must start with a format field", lineNum)
			}
			if key == "format" && value != FormatVersion {
				return nil, fmt.Errorf("unsupported processed log format %q", value)
			}
			header[key] = value
			if key == "columns" {
				if value != columnsV1 {
					return nil, fmt.Errorf("line %d: unexpected column list %q", lineNum, value)
				}
				sawColumns = true
			}
			continue
		}

		if !sawColumns {
			return nil, fmt.Errorf("line %d: data row before columns declaration", lineNum)
		}
		row, err := parseDataRow(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read processed log: %w", err)
	}
	if !sawColumns {
		return nil, fmt.Errorf("processed log has no columns declaration")
	}

	rec, err := recordFromHeader(header)
	if err != nil {
		return nil, err
	}
	rec.Rows = rows
	return rec, nil
}

func parseHeaderLine(line string) (key, value string, err error) {
	body := strings.TrimPrefix(line, "# ")
	key, value, ok := strings.Cut(body, " = ")
	if !ok {
		return "", "", fmt.Errorf("malformed header line %q", line)
	}
	return strings.TrimSpace(key), strings.TrimSpace(value), nil
}

func recordFromHeader(header map[string]string) (*FlightRecord, error) {
	get := func(key string) string {
		v := header[key]
		if v == Placeholder {
			return ""
		}
		return v
	}
	require := func(key string) (string, error) {
		v, ok := header[key]
		if !ok {
			return "", fmt.Errorf("processed log header missing %q", key)
		}
		if v == Placeholder {
			return "", nil
		}
		return v, nil
	}

	rec := &FlightRecord{}
	var err error
	if rec.Meta.DeviceID, err = require("device_id"); err != nil {
		return nil, err
	}
	if rec.Meta.FlightNumber, err = require("flight_number"); err != nil {
		return nil, err
	}
	rec.Meta.DetectorModel = get("detector_model")
	rec.Meta.OriginICAO = get("origin")
	rec.Meta.DestinationICAO = get("destination")
	rec.Meta.CitizenID = get("citizen_id")

	if rec.Meta.TakeoffUTC, err = parseHeaderTime(header, "takeoff_utc"); err != nil {
		return nil, err
	}
	if rec.Meta.LandingUTC, err = parseHeaderTime(header, "landing_utc"); err != nil {
		return nil, err
	}

	if v := get("reference_time_offset_s"); v != "" {
		if rec.Alignment.OffsetSeconds, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("bad reference_time_offset_s %q", v)
		}
	}
	if v := get("reference_scaling_beta"); v != "" {
		if rec.Alignment.ScalingBeta, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf("bad reference_scaling_beta %q", v)
		}
	}
	if v := get("reference_fit_r2"); v != "" {
		if rec.Alignment.FitR2, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf("bad reference_fit_r2 %q", v)
		}
	}

	rec.Timestamps = get("detector_timestamps")
	if rec.Timestamps != TimestampsRepaired {
		rec.Timestamps = TimestampsOriginal
	}

	return rec, nil
}

func parseHeaderTime(header map[string]string, key string) (time.Time, error) {
	v, ok := header[key]
	if !ok {
		return time.Time{}, fmt.Errorf("processed log header missing %q", key)
	}
	if v == Placeholder {
		return time.Time{}, nil
	}
	t, err := time.Parse(logTimeLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad %s %q", key, v)
	}
	return t, nil
}

func parseDataRow(line string) (Row, error) {
	cells := strings.Split(line, ",")
	if len(cells) != 8 {
		return Row{}, fmt.Errorf("expected 8 columns, got %d", len(cells))
	}
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}

	var row Row
	var err error
	if row.Timestamp, err = time.Parse(logTimeLayout, cells[0]); err != nil {
		return Row{}, fmt.Errorf("bad timestamp %q", cells[0])
	}
	if row.Count5s, err = strconv.Atoi(cells[1]); err != nil {
		return Row{}, fmt.Errorf("bad cnt_5s %q", cells[1])
	}
	if cells[2] != Placeholder {
		n, err := strconv.Atoi(cells[2])
		if err != nil {
			return Row{}, fmt.Errorf("bad cnt_1min %q", cells[2])
		}
		row.Count1min = &n
	}
	if row.Lat, err = strconv.ParseFloat(cells[3], 64); err != nil {
		return Row{}, fmt.Errorf("bad latitude %q", cells[3])
	}
	if row.Lon, err = strconv.ParseFloat(cells[4], 64); err != nil {
		return Row{}, fmt.Errorf("bad longitude %q", cells[4])
	}
	if row.Alt, err = strconv.ParseFloat(cells[5], 64); err != nil {
		return Row{}, fmt.Errorf("bad altitude %q", cells[5])
	}
	if row.DoseTotal, err = strconv.ParseFloat(cells[6], 64); err != nil {
		return Row{}, fmt.Errorf("bad simulation_total %q", cells[6])
	}
	if row.DoseNeutron, err = strconv.ParseFloat(cells[7], 64); err != nil {
		return Row{}, fmt.Errorf("bad simulation_neutron %q", cells[7])
	}
	return row, nil
}
