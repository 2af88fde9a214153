package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE organizations (
				id UUID PRIMARY KEY,
				code VARCHAR(32) NOT NULL UNIQUE,
				name VARCHAR(255) NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE offices (
				id UUID PRIMARY KEY,
				organization_id UUID NOT NULL REFERENCES organizations(id),
				code VARCHAR(64) NOT NULL,
				name VARCHAR(255) NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_offices_organization ON offices(organization_id);

			CREATE TABLE users (
				id UUID PRIMARY KEY,
				email VARCHAR(255) NOT NULL UNIQUE,
				first_name VARCHAR(255) NOT NULL DEFAULT '',
				last_name VARCHAR(255) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE office_memberships (
				user_id UUID NOT NULL REFERENCES users(id),
				office_id UUID NOT NULL REFERENCES offices(id),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (user_id, office_id)
			);

			CREATE INDEX idx_office_memberships_office ON office_memberships(office_id);
		`,
		2: `
			-- Node and connection rows live as JSONB documents on the
			-- template: the engine always loads the whole graph at once.
			CREATE TABLE workflow_templates (
				id UUID PRIMARY KEY,
				organization_id UUID,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				canvas_data JSONB,
				active BOOLEAN NOT NULL DEFAULT true,
				version INTEGER NOT NULL DEFAULT 1,
				stage_nodes JSONB NOT NULL DEFAULT '[]',
				action_nodes JSONB NOT NULL DEFAULT '[]',
				connections JSONB NOT NULL DEFAULT '[]',
				created_by VARCHAR(255),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflow_templates_organization ON workflow_templates(organization_id);
			CREATE INDEX idx_workflow_templates_active ON workflow_templates(active);

			CREATE TABLE packages (
				id UUID PRIMARY KEY,
				organization_id UUID NOT NULL REFERENCES organizations(id),
				template_id UUID REFERENCES workflow_templates(id),
				title VARCHAR(500) NOT NULL,
				reference_number VARCHAR(64),
				status VARCHAR(32) NOT NULL,
				priority VARCHAR(16) NOT NULL DEFAULT 'normal',
				priority_deadline TIMESTAMP WITH TIME ZONE,
				originator_id UUID NOT NULL,
				originating_office_id UUID NOT NULL,
				current_node VARCHAR(255) NOT NULL DEFAULT '',
				integrity_violation BOOLEAN NOT NULL DEFAULT false,
				tabs JSONB NOT NULL DEFAULT '[]',
				submitted_at TIMESTAMP WITH TIME ZONE,
				completed_at TIMESTAMP WITH TIME ZONE,
				archived_at TIMESTAMP WITH TIME ZONE,
				archived_by VARCHAR(255),
				archive_reason TEXT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE UNIQUE INDEX idx_packages_reference ON packages(reference_number) WHERE reference_number IS NOT NULL AND reference_number <> '';
			CREATE INDEX idx_packages_organization ON packages(organization_id);
			CREATE INDEX idx_packages_status ON packages(status);
			CREATE INDEX idx_packages_current_node ON packages(current_node);
		`,
		3: `
			CREATE TABLE stage_actions (
				id UUID PRIMARY KEY,
				package_id UUID NOT NULL REFERENCES packages(id) ON DELETE CASCADE,
				node_id VARCHAR(255) NOT NULL,
				actor_id UUID NOT NULL,
				actor_office_id UUID NOT NULL,
				actor_position VARCHAR(255) NOT NULL DEFAULT '',
				decision VARCHAR(16) NOT NULL,
				comment TEXT NOT NULL DEFAULT '',
				return_to_node VARCHAR(255) NOT NULL DEFAULT '',
				ip_address VARCHAR(64) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_stage_actions_package ON stage_actions(package_id);
			CREATE INDEX idx_stage_actions_node ON stage_actions(package_id, node_id);

			CREATE TABLE stage_completions (
				package_id UUID NOT NULL REFERENCES packages(id) ON DELETE CASCADE,
				node_id VARCHAR(255) NOT NULL,
				office_id UUID NOT NULL,
				stage_action_id UUID NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (package_id, node_id, office_id)
			);

			CREATE TABLE routing_history (
				id UUID PRIMARY KEY,
				package_id UUID NOT NULL REFERENCES packages(id) ON DELETE CASCADE,
				from_node VARCHAR(255) NOT NULL DEFAULT '',
				to_node VARCHAR(255) NOT NULL DEFAULT '',
				transition VARCHAR(16) NOT NULL,
				triggered_by UUID,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_routing_history_package ON routing_history(package_id, created_at);

			CREATE TABLE signatures (
				id UUID PRIMARY KEY,
				package_id UUID NOT NULL REFERENCES packages(id) ON DELETE CASCADE,
				stage_action_id UUID NOT NULL UNIQUE REFERENCES stage_actions(id),
				signer_id UUID NOT NULL,
				signer_name VARCHAR(255) NOT NULL DEFAULT '',
				signer_email VARCHAR(255) NOT NULL DEFAULT '',
				signer_office_id VARCHAR(255) NOT NULL DEFAULT '',
				signer_position VARCHAR(255) NOT NULL DEFAULT '',
				signature_type VARCHAR(16) NOT NULL,
				method VARCHAR(16) NOT NULL,
				key_fingerprint VARCHAR(64) NOT NULL DEFAULT '',
				canonical_payload TEXT NOT NULL,
				signature_blob BYTEA NOT NULL,
				status VARCHAR(16) NOT NULL,
				verified_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_signatures_package ON signatures(package_id);

			CREATE TABLE integrity_violations (
				id UUID PRIMARY KEY,
				package_id UUID NOT NULL REFERENCES packages(id) ON DELETE CASCADE,
				tab_identifier VARCHAR(8) NOT NULL,
				violating_document_id VARCHAR(255) NOT NULL DEFAULT '',
				uploaded_by VARCHAR(255) NOT NULL DEFAULT '',
				affected_signatures JSONB NOT NULL DEFAULT '[]',
				change_reason TEXT NOT NULL DEFAULT '',
				resolution VARCHAR(16) NOT NULL DEFAULT 'pending',
				resolved_by VARCHAR(255),
				resolved_at TIMESTAMP WITH TIME ZONE,
				detected_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_integrity_violations_package ON integrity_violations(package_id);
			CREATE INDEX idx_integrity_violations_resolution ON integrity_violations(package_id, resolution);
		`,
	}
}
