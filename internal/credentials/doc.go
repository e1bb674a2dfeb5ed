// Package credentials exchanges the device certificate for short-lived
// cloud credentials through an IoT role alias.
//
// The Broker performs an HTTPS GET authenticated by the same client
// certificate used for the MQTT connection:
//
//	GET https://{endpoint}/role-aliases/{roleAlias}/credentials
//	x-amzn-iot-thingname: {thingName}
//
// Only transport failures are retried (bounded separately for connect and
// read failures); any HTTP status other than 200 fails the run at once.
//
// Provider adapts a Broker to aws.CredentialsProvider so SDK clients fetch
// credentials lazily on first use. Credentials are kept in memory only and
// are not refreshed within a run.
package credentials
