package mqtt

// defaultTopicPrefix is used when no prefix is configured.
const defaultTopicPrefix = "lexhost"

// Topics are the lexhost MQTT topics under one prefix.
//
//	topics := mqtt.NewTopics("site/a")
//	topics.ProvisioningStatus() // "site/a/provisioning/status"
type Topics struct {
	prefix string
}

// NewTopics returns the topics for prefix, defaulting to "lexhost".
func NewTopics(prefix string) Topics {
	if prefix == "" {
		prefix = defaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// SystemStatus carries online/offline announcements and the Last Will.
func (t Topics) SystemStatus() string {
	return t.prefix + "/system/status"
}

// ProvisioningStatus carries the retained provisioning state.
func (t Topics) ProvisioningStatus() string {
	return t.prefix + "/provisioning/status"
}

// ProvisioningCommand receives remote provisioning commands.
func (t Topics) ProvisioningCommand() string {
	return t.prefix + "/command/provisioning"
}
