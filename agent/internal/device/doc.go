// Package device polls wearables and bridges that expose their current
// reading over HTTP and turns each response into a types.Reading.
//
// Two payload formats are understood:
//   - json: {"bpm": 72, "spo2": 98} from simple band firmware, or the full
//     {"pulseRate": 72, "spo2": 98, "steps": 10, "calories": 1.2, "deviceId": "x"}
//   - prometheus: a text exposition carrying pulse_rate_bpm, spo2_percent,
//     steps_total and calories_kcal
//
// Authentication (API key, bearer token, basic) is handled by the shared
// authRoundTripper; each Poller owns a pre-configured *http.Client.
// A 204 response means the device has nothing new and yields ErrNoReading.
package device
