package pipeline

import (
	parquetbuffer "github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type sampleParquetRow struct {
	Timestamp       string   `parquet:"name=timestamp, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	HeartRate       *int32   `parquet:"name=heart_rate, type=INT32, repetitiontype=OPTIONAL"`
	PositionLat     *float64 `parquet:"name=position_lat, type=DOUBLE, repetitiontype=OPTIONAL"`
	PositionLong    *float64 `parquet:"name=position_long, type=DOUBLE, repetitiontype=OPTIONAL"`
	Altitude        *float64 `parquet:"name=altitude, type=DOUBLE, repetitiontype=OPTIONAL"`
	Speed           *float64 `parquet:"name=speed, type=DOUBLE, repetitiontype=OPTIONAL"`
	Cadence         *float64 `parquet:"name=cadence, type=DOUBLE, repetitiontype=OPTIONAL"`
	Distance        *float64 `parquet:"name=distance, type=DOUBLE, repetitiontype=OPTIONAL"`
	Power           *float64 `parquet:"name=power, type=DOUBLE, repetitiontype=OPTIONAL"`
	RespirationRate *float64 `parquet:"name=respiration_rate, type=DOUBLE, repetitiontype=OPTIONAL"`
	Temperature     *float64 `parquet:"name=temperature, type=DOUBLE, repetitiontype=OPTIONAL"`
	GPSAccuracy     *float64 `parquet:"name=gps_accuracy, type=DOUBLE, repetitiontype=OPTIONAL"`
	Anomaly         int32    `parquet:"name=anomaly, type=INT32"`
}

// EncodeSamplesParquet renders samples as a SNAPPY-compressed Parquet file
// in memory. Missing values are written as nulls.
func EncodeSamplesParquet(samples []Sample) ([]byte, error) {
	fw := parquetbuffer.NewBufferFile()
	pw, err := writer.NewParquetWriter(fw, new(sampleParquetRow), 4)
	if err != nil {
		return nil, err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, s := range samples {
		row := sampleParquetRow{
			Timestamp:       s.Timestamp,
			PositionLat:     sanitizeFloat(s.PositionLat),
			PositionLong:    sanitizeFloat(s.PositionLong),
			Altitude:        sanitizeFloat(s.Altitude),
			Speed:           sanitizeFloat(s.Speed),
			Cadence:         sanitizeFloat(s.Cadence),
			Distance:        sanitizeFloat(s.Distance),
			Power:           sanitizeFloat(s.Power),
			RespirationRate: sanitizeFloat(s.RespirationRate),
			Temperature:     sanitizeFloat(s.Temperature),
			GPSAccuracy:     sanitizeFloat(s.GPSAccuracy),
			Anomaly:         int32(s.Anomaly),
		}
		if s.HeartRate != nil {
			hr := int32(*s.HeartRate)
			row.HeartRate = &hr
		}
		if err := pw.Write(row); err != nil {
			_ = pw.WriteStop()
			return nil, err
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	return append([]byte(nil), fw.Bytes()...), nil
}
