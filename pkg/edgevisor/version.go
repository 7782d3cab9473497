package edgevisor

// Version is the release of the edgevisor module.
const Version = "0.1.0"
