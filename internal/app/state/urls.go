package state

// SignedAPIURL tracks one signed-data endpoint and the last time data was
// successfully received from it, in Unix milliseconds. URLs are namespaced
// per beacon by appending the beacon's airnode address, so one base URL
// serving several beacons is tracked independently per beacon.
type SignedAPIURL struct {
	URL            string
	LastReceivedMs int64
}

// mergeSignedAPIURLs unions two URL sets. For URLs present in both, the
// entry with the greater LastReceivedMs wins.
func mergeSignedAPIURLs(current map[string]int64, incoming []SignedAPIURL) {
	for _, entry := range incoming {
		if last, ok := current[entry.URL]; !ok || entry.LastReceivedMs > last {
			current[entry.URL] = entry.LastReceivedMs
		}
	}
}
