package pipeline

// LabelAnomalies marks samples whose timestamp is listed with anomaly=1 and
// resets every other sample to 0. It returns the number of samples flagged.
func LabelAnomalies(samples []Sample, anomalous []string) int {
	set := make(map[string]struct{}, len(anomalous))
	for _, ts := range anomalous {
		set[ts] = struct{}{}
	}

	flagged := 0
	for i := range samples {
		if _, ok := set[samples[i].Timestamp]; ok {
			samples[i].Anomaly = 1
			flagged++
			continue
		}
		samples[i].Anomaly = 0
	}
	return flagged
}

// ApplyAnomalyUpdates sets the anomaly value of samples whose timestamp is a
// key of updates, leaving the rest untouched. Values other than 0 count as 1.
// It returns the number of samples updated.
func ApplyAnomalyUpdates(samples []Sample, updates map[string]int) int {
	updated := 0
	for i := range samples {
		v, ok := updates[samples[i].Timestamp]
		if !ok {
			continue
		}
		samples[i].Anomaly = 0
		if v != 0 {
			samples[i].Anomaly = 1
		}
		updated++
	}
	return updated
}
