// Meshcast - Mesh Network Telemetry Ingestion and Live Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meshcast

package classifier

import "fmt"

var roleNames = map[uint64]string{
	0:  "CLIENT",
	1:  "CLIENT_MUTE",
	2:  "ROUTER",
	3:  "ROUTER_CLIENT",
	4:  "REPEATER",
	5:  "TRACKER",
	6:  "SENSOR",
	7:  "TAK",
	8:  "CLIENT_HIDDEN",
	9:  "LOST_AND_FOUND",
	10: "TAK_TRACKER",
	11: "ROUTER_LATE",
}

var hwModelNames = map[uint64]string{
	0:   "UNSET",
	1:   "TLORA_V2",
	2:   "TLORA_V1",
	3:   "TLORA_V2_1_1P6",
	4:   "TBEAM",
	5:   "HELTEC_V2_0",
	6:   "TBEAM_V0P7",
	7:   "T_ECHO",
	8:   "TLORA_V1_1P3",
	9:   "RAK4631",
	10:  "HELTEC_V2_1",
	11:  "HELTEC_V1",
	12:  "LILYGO_TBEAM_S3_CORE",
	13:  "RAK11200",
	14:  "NANO_G1",
	15:  "TLORA_V2_1_1P8",
	16:  "TLORA_T3_S3",
	17:  "NANO_G1_EXPLORER",
	18:  "NANO_G2_ULTRA",
	43:  "HELTEC_V3",
	44:  "HELTEC_WSL_V3",
	50:  "T_DECK",
	255: "PRIVATE_HW",
}

var regionNames = map[uint64]string{
	0:  "UNSET",
	1:  "US",
	2:  "EU_433",
	3:  "EU_868",
	4:  "CN",
	5:  "JP",
	6:  "ANZ",
	7:  "KR",
	8:  "TW",
	9:  "RU",
	10: "IN",
	11: "NZ_865",
	12: "TH",
	13: "LORA_24",
	14: "UA_433",
	15: "UA_868",
	16: "MY_433",
	17: "MY_919",
	18: "SG_923",
}

var modemPresetNames = map[uint64]string{
	0: "LONG_FAST",
	1: "LONG_SLOW",
	2: "VERY_LONG_SLOW",
	3: "MEDIUM_SLOW",
	4: "MEDIUM_FAST",
	5: "SHORT_SLOW",
	6: "SHORT_FAST",
	7: "LONG_MODERATE",
	8: "SHORT_TURBO",
}

var routingErrorNames = map[uint64]string{
	0:  "NONE",
	1:  "NO_ROUTE",
	2:  "GOT_NAK",
	3:  "TIMEOUT",
	4:  "NO_INTERFACE",
	5:  "MAX_RETRANSMIT",
	6:  "NO_CHANNEL",
	7:  "TOO_LARGE",
	8:  "NO_RESPONSE",
	9:  "DUTY_CYCLE_LIMIT",
	32: "BAD_REQUEST",
	33: "NOT_AUTHORIZED",
	34: "PKI_FAILED",
	35: "PKI_UNKNOWN_PUBKEY",
}

func enumName(table map[uint64]string, prefix string, v uint64) string {
	if name, ok := table[v]; ok {
		return name
	}
	return fmt.Sprintf("%s_%d", prefix, v)
}

func roleName(v uint64) string         { return enumName(roleNames, "ROLE", v) }
func hwModelName(v uint64) string      { return enumName(hwModelNames, "HW_MODEL", v) }
func regionName(v uint64) string       { return enumName(regionNames, "REGION", v) }
func modemPresetName(v uint64) string  { return enumName(modemPresetNames, "MODEM_PRESET", v) }
func routingErrorName(v uint64) string { return enumName(routingErrorNames, "ROUTING_ERROR", v) }
