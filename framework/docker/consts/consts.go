package consts

const (
	// CleanupLabel tags every container and network created by the devnet so
	// that `down` can find exactly those resources.
	CleanupLabel = "poa-devnet"
	// DockerPrefix prefixes generated docker resource names.
	DockerPrefix = "poa-devnet"
	// ProjectLabelValue is the value set on CleanupLabel.
	ProjectLabelValue = "bootstrap"
	// ServiceLabel records which descriptor service a container runs.
	ServiceLabel = "poa-devnet.service"
)
